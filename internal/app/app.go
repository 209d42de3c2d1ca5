// Package app holds application-wide identity constants.
package app

const (
	Name    = "Userscript Proxy"
	Version = "0.2.0"

	// TagAttr marks every injected <script> element with the proxy version,
	// so injected tags are recognizable in the rewritten document.
	TagAttr = "data-userscript-proxy-version"
)
