package injector

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yucer/userscript-proxy/internal/app"
	"github.com/yucer/userscript-proxy/userscript"
)

// placement selects the insertion point for an injected tag.
type placement int

const (
	// placeHead appends the tag as the last child of <head>.
	placeHead placement = iota
	// placeEarly inserts the tag as early in the document as possible.
	placeEarly
)

// plan describes one script's injection: the ready-made tag and where to put
// it.
type plan struct {
	tag       *html.Node
	placement placement
}

// planInjection decides the tag shape and insertion point for one script.
// The two independent axes are inline vs. remote (remote requires a download
// URL, and the force-inline option overrides it) and run-at timing.
func planInjection(s *userscript.Userscript, forceInline bool) plan {
	tag := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr: []html.Attribute{
			{Key: app.TagAttr, Val: app.Version},
		},
	}

	if forceInline || s.DownloadURL() == "" {
		body := s.Content()
		if s.RunAt() == userscript.RunAtIdle {
			body = userscript.WrapInEventListener("load", body)
		}
		if s.Noframes() {
			body = userscript.WrapInTopFrameCheck(body)
		}
		tag.AppendChild(&html.Node{Type: html.TextNode, Data: body})
		return plan{tag: tag, placement: placementFor(s.RunAt())}
	}

	src := userscript.WithVersionSuffix(s.DownloadURL(), s.Version())

	if s.RunAt() == userscript.RunAtIdle || s.Noframes() {
		// A plain src attribute can neither be deferred until after load nor
		// frame-restricted, so these scripts get an inline bootstrap that
		// attaches the remote tag programmatically.
		body := remoteBootstrap(src, s.RunAt() == userscript.RunAtIdle)
		if s.Noframes() {
			body = userscript.WrapInTopFrameCheck(body)
		}
		tag.AppendChild(&html.Node{Type: html.TextNode, Data: body})
		return plan{tag: tag, placement: placementFor(s.RunAt())}
	}

	tag.Attr = append(tag.Attr, html.Attribute{Key: "src", Val: src})
	return plan{tag: tag, placement: placeEarly}
}

func placementFor(runAt userscript.RunAt) placement {
	switch runAt {
	case userscript.RunAtStart, userscript.RunAtIdle:
		return placeHead
	default:
		return placeEarly
	}
}

// remoteBootstrap builds the inline glue that creates a script element for
// the remote source and attaches it to the document head, deferred until
// after load when idle is set. The glue runs inside an IIFE so its bindings
// stay out of the global scope; several bootstraps on one page must not
// collide.
func remoteBootstrap(src string, idle bool) string {
	attach := "document.head.appendChild(s);"
	if idle {
		attach = userscript.WrapInEventListener("load", attach)
	}
	return fmt.Sprintf("(function() {\nconst s = document.createElement(%q);\ns.setAttribute(%q, %q);\ns.src = %q;\n%s\n})();",
		"script", app.TagAttr, app.Version, src, attach)
}

// execute inserts the planned tag into the document.
func (p plan) execute(doc *html.Node) {
	switch p.placement {
	case placeHead:
		insertIntoHead(doc, p.tag)
	default:
		insertEarly(doc, p.tag)
	}
}
