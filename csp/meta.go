package csp

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PatchMetaTags mutates <meta http-equiv="Content-Security-Policy"> elements
// in an already-parsed document so a script element carrying the given nonce
// can run. It reports whether any tag was changed.
func PatchMetaTags(doc *html.Node, nonce string) bool {
	changed := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			if patchMetaTag(n, nonce) {
				changed = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return changed
}

func patchMetaTag(meta *html.Node, nonce string) bool {
	var hasCSP bool
	contentIdx := -1

	for i, a := range meta.Attr {
		if strings.EqualFold(a.Key, "http-equiv") && strings.EqualFold(a.Val, "content-security-policy") {
			hasCSP = true
		}
		if strings.EqualFold(a.Key, "content") {
			contentIdx = i
		}
	}

	if !hasCSP || contentIdx == -1 || meta.Attr[contentIdx].Val == "" {
		return false
	}

	patched, changed := patchPolicies([]string{meta.Attr[contentIdx].Val}, nonce)
	if !changed {
		return false
	}
	meta.Attr[contentIdx].Val = patched[0]
	return true
}
