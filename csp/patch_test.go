package csp

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestPatchHeaders(t *testing.T) {
	t.Parallel()

	t.Run("does not create CSP header when none is present", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		PatchHeaders(h, NewNonce())

		if got := h.Values("Content-Security-Policy"); len(got) != 0 {
			t.Fatalf("headers should be unchanged, got %v", got)
		}
	})

	t.Run("replace 'none' in most specific directive", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Add("Content-Security-Policy", "script-src-elem 'none'")

		nonce := NewNonce()
		PatchHeaders(h, nonce)
		token := "'nonce-" + nonce + "'"

		got := strings.Join(h.Values("Content-Security-Policy"), ", ")
		expected := fmt.Sprintf("script-src-elem %s", token)
		if got != expected {
			t.Fatalf("expected header value %q, got %q", expected, got)
		}
	})

	t.Run("report-only is patched too", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Add("Content-Security-Policy-Report-Only", "script-src 'self'")

		nonce := NewNonce()
		PatchHeaders(h, nonce)

		got := h.Get("Content-Security-Policy-Report-Only")
		if !strings.Contains(got, "'nonce-"+nonce+"'") {
			t.Fatalf("nonce not placed in report-only header: %s", got)
		}
	})

	t.Run("policy already allowing all inline is untouched", func(t *testing.T) {
		t.Parallel()

		line := "script-src 'unsafe-inline' https:"
		h := http.Header{}
		h.Add("Content-Security-Policy", line)

		PatchHeaders(h, NewNonce())
		if got := h.Get("Content-Security-Policy"); got != line {
			t.Fatalf("expected %q, got %q", line, got)
		}
	})
}

func TestPatchHeaders_NoncePriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		cspLine       string
		wantDirective string
	}{
		{
			name:          "script-src-elem is most specific",
			cspLine:       "default-src 'self'; script-src 'self'; script-src-elem 'self'",
			wantDirective: "script-src-elem",
		},
		{
			name:          "script-src fallback",
			cspLine:       "object-src 'none'; script-src 'self'",
			wantDirective: "script-src",
		},
		{
			name:          "default-src fallback",
			cspLine:       "default-src 'self'",
			wantDirective: "default-src",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := http.Header{}
			h.Add("Content-Security-Policy", tc.cspLine)

			nonce := NewNonce()
			PatchHeaders(h, nonce)
			if !dirHasNonce(h, tc.wantDirective, nonce) {
				t.Fatalf("nonce not placed in %s\nheader: %s",
					tc.wantDirective, h.Get("Content-Security-Policy"))
			}
		})
	}
}

func TestPatchMetaTags(t *testing.T) {
	t.Parallel()

	t.Run("meta CSP gets the nonce", func(t *testing.T) {
		t.Parallel()

		doc, err := html.Parse(strings.NewReader(`<html><head><meta http-equiv="Content-Security-Policy" content="script-src 'none'"></head><body></body></html>`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		nonce := NewNonce()
		if !PatchMetaTags(doc, nonce) {
			t.Fatal("expected a change")
		}

		var sb strings.Builder
		if err := html.Render(&sb, doc); err != nil {
			t.Fatalf("render: %v", err)
		}
		token := "'nonce-" + nonce + "'"
		escapedToken := strings.ReplaceAll(token, "'", "&#39;")
		if !strings.Contains(sb.String(), token) && !strings.Contains(sb.String(), escapedToken) {
			t.Fatalf("expected meta CSP to contain %q, got %s", token, sb.String())
		}
	})

	t.Run("unrelated meta tags are untouched", func(t *testing.T) {
		t.Parallel()

		doc, err := html.Parse(strings.NewReader(`<html><head><meta charset="utf-8"></head><body></body></html>`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if PatchMetaTags(doc, NewNonce()) {
			t.Fatal("expected no change")
		}
	})
}

func dirHasNonce(h http.Header, dir, nonce string) bool {
	token := "'nonce-" + nonce + "'"

	for _, line := range h.Values("Content-Security-Policy") {
		for _, raw := range strings.Split(line, ";") {
			d := strings.TrimSpace(raw)
			if d == "" {
				continue
			}
			name, value := cutDirective(d)
			if name == dir && strings.Contains(value, token) {
				return true
			}
		}
	}
	return false
}
