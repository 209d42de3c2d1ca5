// Package injector rewrites HTML responses passing through the proxy,
// inserting every loaded userscript that applies to the request URL.
package injector

import (
	"bytes"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/yucer/userscript-proxy/csp"
	"github.com/yucer/userscript-proxy/htmlrewrite"
	"github.com/yucer/userscript-proxy/internal/app"
	"github.com/yucer/userscript-proxy/userscript"
)

// Config carries the injection policy knobs.
type Config struct {
	// ForceInline injects every script inline, even those declaring a
	// download URL.
	ForceInline bool
	// ApplyUnscoped makes scripts without match/include patterns apply to
	// every page. By default such scripts never apply.
	ApplyUnscoped bool
}

// Injector decides, per intercepted response, which userscripts to insert
// and rewrites the document accordingly.
//
// The script list is fixed at construction time; Injector is safe for
// concurrent use.
type Injector struct {
	scripts []*userscript.Userscript
	index   *scriptIndex
	cfg     Config

	// insert builds and places one script's tag. Swappable in tests.
	insert func(doc *html.Node, s *userscript.Userscript, forceInline bool) (*html.Node, error)
}

func New(scripts []*userscript.Userscript, cfg Config) *Injector {
	return &Injector{
		scripts: scripts,
		index:   newScriptIndex(scripts),
		cfg:     cfg,
		insert:  injectOne,
	}
}

// Scripts returns the loaded scripts in load order. The returned slice must
// not be modified.
func (inj *Injector) Scripts() []*userscript.Userscript {
	return inj.scripts
}

// Inject rewrites an HTML response, inserting every applicable script and a
// diagnostic comment naming what was inserted. Non-HTML responses pass
// through untouched.
//
// Failures never reach the client. A failure while inserting one script is
// logged and isolated: the script is omitted from the inserted list and the
// rest of the rewrite proceeds. A body that cannot be unpacked at all is
// logged and served unmodified.
func (inj *Injector) Inject(req *http.Request, res *http.Response) error {
	if !isRewritable(res) {
		return nil
	}

	applicable := inj.index.applicable(req.URL.String(), inj.cfg.ApplyUnscoped)

	nonce := csp.NewNonce()
	var inserted []string
	cspPatched := false

	rewriteErr := htmlrewrite.BufferRewrite(res, func(body []byte) []byte {
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			log.Printf("parsing document for %q: %v", req.URL, err)
			return body
		}

		var tags []*html.Node
		for _, s := range applicable {
			tag, err := inj.insert(doc, s, inj.cfg.ForceInline)
			if err != nil {
				log.Printf("inserting %q into %q: %v", s.Name(), req.URL, err)
				continue
			}
			tags = append(tags, tag)
			inserted = append(inserted, s.Name())
		}

		insertComment(doc, infoComment(inserted))

		// Only pages that declare a CSP need the nonce; leaving it off
		// elsewhere keeps the rewrite deterministic.
		if len(tags) > 0 {
			metaChanged := csp.PatchMetaTags(doc, nonce)
			if metaChanged || hasCSPHeader(res.Header) {
				cspPatched = true
				for _, tag := range tags {
					tag.Attr = append(tag.Attr, html.Attribute{Key: "nonce", Val: nonce})
				}
			}
		}

		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err != nil {
			log.Printf("rendering document for %q: %v", req.URL, err)
			return body
		}
		return buf.Bytes()
	})
	if rewriteErr != nil {
		// A body that cannot be unpacked is served as-is; rewriting is an
		// enhancement, not a precondition for delivering the page.
		log.Printf("rewriting body for %q: %v", req.URL, rewriteErr)
		return nil
	}

	if cspPatched {
		csp.PatchHeaders(res.Header, nonce)
	}
	if len(inserted) > 0 {
		log.Printf("injected %d userscript(s) into %q", len(inserted), req.URL)
	}
	return nil
}

// injectOne plans and inserts a single script's tag, returning the inserted
// node.
func injectOne(doc *html.Node, s *userscript.Userscript, forceInline bool) (tag *html.Node, err error) {
	defer func() {
		// Document mutation must never take down the whole response rewrite.
		if r := recover(); r != nil {
			tag, err = nil, fmt.Errorf("insert tag: %v", r)
		}
	}()

	p := planInjection(s, forceInline)
	p.execute(doc)
	return p.tag, nil
}

var relevantMediaTypes = []string{"text/html", "application/xhtml+xml"}

// isRewritable reports whether the response carries an HTML or XHTML
// document.
func isRewritable(res *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	for _, t := range relevantMediaTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func hasCSPHeader(h http.Header) bool {
	return len(h.Values("Content-Security-Policy")) > 0 ||
		len(h.Values("Content-Security-Policy-Report-Only")) > 0
}

const listItemPrefix = "    • "

// infoComment renders the diagnostic comment body naming the inserted
// scripts.
func infoComment(inserted []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n[%s v%s]\n", app.Name, app.Version)
	if len(inserted) == 0 {
		sb.WriteString("No matching userscripts for this URL.")
	} else {
		sb.WriteString("These scripts were inserted:\n")
		for i, name := range inserted {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(listItemPrefix + name)
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}
