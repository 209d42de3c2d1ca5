package userscript

import (
	"fmt"
	"net/url"
	"strings"
)

// WrapInEventListener defers content until the given window event has fired.
func WrapInEventListener(event, content string) string {
	return fmt.Sprintf("window.addEventListener(%q, function() {\n%s\n});", event, content)
}

// WrapInTopFrameCheck restricts content to the top-level document, so it
// never runs inside a nested frame.
func WrapInTopFrameCheck(content string) string {
	return fmt.Sprintf("if (window.top === window.self) {\n%s\n}", content)
}

// WithVersionSuffix appends the script version as a query parameter to its
// download URL, so clients pick up a fresh copy when the version changes.
func WithVersionSuffix(rawURL, version string) string {
	if version == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "version=" + url.QueryEscape(version)
}
