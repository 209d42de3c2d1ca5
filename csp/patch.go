// Package csp patches Content-Security-Policy response headers and meta tags
// so that injected <script> elements are allowed to run.
package csp

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	cspHeader     = "Content-Security-Policy"
	cspReportOnly = "Content-Security-Policy-Report-Only"
)

// NewNonce returns a cryptographically random base64 string suitable for use
// as a CSP nonce.
func NewNonce() string {
	// From https://www.w3.org/TR/CSP3/#security-nonces:
	// The generated value SHOULD be at least 128 bits long (before encoding), and
	// SHOULD be generated via a cryptographically secure random number generator.
	var b [18]byte // 144 bits
	rand.Read(b[:])
	return base64.StdEncoding.EncodeToString(b[:])
}

// PatchHeaders mutates the response's CSP headers so a script element
// carrying the given nonce can run. Responses without CSP headers are left
// untouched; the nonce is safe to place on tags unconditionally.
func PatchHeaders(h http.Header, nonce string) {
	patchOneHeader(h, cspHeader, nonce)
	patchOneHeader(h, cspReportOnly, nonce)
}

func patchOneHeader(h http.Header, key, nonce string) {
	lines := h.Values(key)
	if len(lines) == 0 {
		return
	}

	patchedLines, changed := patchPolicies(lines, nonce)
	if changed {
		h.Del(key)
		for _, v := range patchedLines {
			h.Add(key, strings.TrimSpace(strings.Trim(v, " ;")))
		}
	}
}

// patchPolicies adds the nonce to each policy that would otherwise reject a
// script element.
func patchPolicies(policies []string, nonce string) ([]string, bool) {
	if len(policies) == 0 {
		return policies, false
	}

	nonceToken := "'nonce-" + nonce + "'"
	changed := false
	// In case of multiple lines/policies, browsers enforce the most
	// restrictive one, so each is modified independently.
	// See more: https://content-security-policy.com/examples/multiple-csp-headers/.
	for i, line := range policies {
		rawDirs := strings.Split(line, ";")
		// Find the most specific directive governing script elements.
		bestIdx, bestName, bestPrio, bestValue := -1, "", 0, ""
		for j, raw := range rawDirs {
			d := strings.TrimSpace(raw)
			if d == "" {
				continue
			}
			name, value := cutDirective(d)
			if prio := directivePriority(name); prio > bestPrio {
				bestIdx, bestName, bestPrio, bestValue = j, name, prio, value
			}
		}
		// No relevant directive on this line; it does not restrict scripts.
		if bestIdx == -1 {
			continue
		}

		if allowsAllInline(bestValue) {
			continue
		}

		var newValue string
		switch bestValue {
		case "'none'":
			newValue = nonceToken
		default:
			newValue = bestValue + " " + nonceToken
		}

		rawDirs[bestIdx] = bestName + " " + newValue
		policies[i] = strings.Join(rawDirs, ";")
		changed = true
	}

	if changed {
		for i, policy := range policies {
			policies[i] = strings.TrimSpace(strings.Trim(policy, " ;"))
		}
	}

	return policies, changed
}

// cutDirective splits "name [value...]" -> (lowercased name, trimmed value).
func cutDirective(s string) (string, string) {
	name, rest, ok := strings.Cut(s, " ")
	if !ok {
		return strings.ToLower(name), ""
	}
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// allowsAllInline implements the CSP3 "Does a source list allow all inline
// behavior?" algorithm for scripts. True iff 'unsafe-inline' is present AND
// there is no nonce/hash AND no 'strict-dynamic'.
//
// Reference: https://www.w3.org/TR/CSP3/#allow-all-inline
func allowsAllInline(sourceList string) bool {
	sourceList = strings.TrimSpace(sourceList)
	if sourceList == "" {
		return false
	}

	var unsafeInline bool
	for _, t := range strings.Fields(sourceList) {
		switch t {
		case "'unsafe-inline'":
			unsafeInline = true
		case "'strict-dynamic'":
			return false
		default:
			if isNonceOrHashSource(t) {
				return false
			}
		}
	}
	return unsafeInline
}

func isNonceOrHashSource(t string) bool {
	if len(t) < 3 || t[0] != '\'' || t[len(t)-1] != '\'' {
		return false
	}
	inner := t[1 : len(t)-1]
	return strings.HasPrefix(inner, "nonce-") ||
		strings.HasPrefix(inner, "sha256-") ||
		strings.HasPrefix(inner, "sha384-") ||
		strings.HasPrefix(inner, "sha512-")
}

func directivePriority(name string) int {
	switch name {
	case "script-src-elem":
		return 3
	case "script-src":
		return 2
	case "default-src":
		return 1
	}
	return 0
}
