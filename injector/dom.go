package injector

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// findElement returns the first element with the given atom in depth-first
// order, or nil.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// firstElement returns the document's first element in depth-first order.
func firstElement(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstElement(c); found != nil {
			return found
		}
	}
	return nil
}

// firstChildElement returns the first direct child of n that is an element.
func firstChildElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// insertAfter inserts n immediately after ref under ref's parent.
func insertAfter(ref, n *html.Node) {
	if ref.NextSibling != nil {
		ref.Parent.InsertBefore(n, ref.NextSibling)
	} else {
		ref.Parent.AppendChild(n)
	}
}

// insertEarly places the tag as early in the document as possible: before
// the first element inside <body> if one exists, else immediately after
// <title>, else immediately after the document's first element, else
// appended to an otherwise empty document.
func insertEarly(doc, tag *html.Node) {
	if body := findElement(doc, atom.Body); body != nil {
		if first := firstChildElement(body); first != nil {
			body.InsertBefore(tag, first)
			return
		}
	}
	if title := findElement(doc, atom.Title); title != nil {
		insertAfter(title, tag)
		return
	}
	if first := firstElement(doc); first != nil {
		insertAfter(first, tag)
		return
	}
	doc.AppendChild(tag)
}

// insertLate appends the tag as the last child of <body>, or to the document
// root if no <body> exists.
func insertLate(doc, tag *html.Node) {
	if body := findElement(doc, atom.Body); body != nil {
		body.AppendChild(tag)
		return
	}
	doc.AppendChild(tag)
}

// insertIntoHead appends the tag as the last child of <head>, falling back
// to late insertion for documents without one.
func insertIntoHead(doc, tag *html.Node) {
	if head := findElement(doc, atom.Head); head != nil {
		head.AppendChild(tag)
		return
	}
	insertLate(doc, tag)
}

// insertComment places a comment node immediately after a leading doctype
// declaration if one is the document's first node, otherwise as the
// document's very first node.
func insertComment(doc *html.Node, text string) {
	comment := &html.Node{Type: html.CommentNode, Data: text}
	switch first := doc.FirstChild; {
	case first == nil:
		doc.AppendChild(comment)
	case first.Type == html.DoctypeNode:
		insertAfter(first, comment)
	default:
		doc.InsertBefore(comment, first)
	}
}
