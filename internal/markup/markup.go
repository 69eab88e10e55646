// Package markup finds media placeholders in rendered pages and rewrites
// them into <picture> elements that offer the WebP derivatives.
//
// A placeholder is any element carrying the optimize-image marker (or
// data-optimize-image). A container must hold exactly one <img> with a src;
// a marked <img> on its own is wrapped in a new <picture>:
//
//	<picture optimize-image resize="up"><img src="/img/photo.jpg"></picture>
//
// becomes
//
//	<picture><source type="image/webp" srcset="/img/photoa.webp 1x, ..."><img src="/img/photo.jpg"></picture>
//
// A page with at least one placeholder is re-serialized from its parse tree,
// so unrelated markup comes out normalized (quoting, void elements, implied
// <html>, <head> and <body> around fragments). Pages without placeholders
// are returned byte for byte.
//
// resize accepts up, down, none or nothing. The boolean resize="true" of
// older templates is rejected like any other unknown token.
package markup

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/plan"
)

// Marker and policy attribute names, plain and data- prefixed.
var (
	markerAttrs = []string{"optimize-image", "data-optimize-image"}
	policyAttrs = []string{"resize", "data-resize"}
)

// Result is the outcome of rewriting one page.
type Result struct {
	HTML       []byte
	References []plan.MediaReference
}

// Changed reports whether the page had any placeholders.
func (r Result) Changed() bool {
	return len(r.References) > 0
}

// Rewrite parses a page, rewrites every placeholder and returns the new
// markup with the references found, in document order. page is the
// page's path relative to the output root and resolves relative srcs.
// Any malformed placeholder fails the whole page and nothing is returned.
func Rewrite(page string, content []byte) (Result, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", page, err)
	}

	v := &visitor{page: page}
	if err := v.walk(doc); err != nil {
		return Result{}, err
	}
	if len(v.refs) == 0 {
		return Result{HTML: content}, nil
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return Result{}, fmt.Errorf("render %s: %w", page, err)
	}
	return Result{HTML: buf.Bytes(), References: v.refs}, nil
}

type visitor struct {
	page string
	refs []plan.MediaReference
}

func (v *visitor) walk(n *html.Node) error {
	switch n.Type {
	case html.ElementNode:
		if hasAnyAttr(n, markerAttrs) {
			return v.placeholder(n)
		}
	case html.CommentNode, html.DoctypeNode, html.TextNode:
		return nil
	}

	// The placeholder may restructure its subtree, so take the next
	// sibling before descending.
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if err := v.walk(c); err != nil {
			return err
		}
		c = next
	}
	return nil
}

func (v *visitor) placeholder(n *html.Node) error {
	policy, err := plan.ParsePolicy(attrValue(n, policyAttrs))
	if err != nil {
		return fmt.Errorf("%s: %w", v.page, err)
	}

	img := n
	if n.DataAtom != atom.Img {
		imgs := findAll(n, atom.Img)
		if len(imgs) != 1 {
			return &mediaerr.MissingRequiredAttributeError{
				Page:    v.page,
				Element: "img",
				Reason:  fmt.Sprintf("<%s> placeholder contains %d <img> elements, want exactly 1", n.Data, len(imgs)),
			}
		}
		img = imgs[0]
	}

	src := strings.TrimSpace(attrValue(img, []string{"src"}))
	if src == "" {
		return &mediaerr.MissingRequiredAttributeError{Page: v.page, Element: "img", Attribute: "src"}
	}

	sourcePath, srcURL, err := v.resolve(src)
	if err != nil {
		return err
	}

	removeAttrs(n, markerAttrs)
	removeAttrs(n, policyAttrs)
	if img == n && !isPicture(n.Parent) {
		img = wrapInPicture(n)
	}

	derivatives, err := plan.Plan(policy, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", v.page, err)
	}
	source := &html.Node{
		Type:     html.ElementNode,
		Data:     "source",
		DataAtom: atom.Source,
		Attr: []html.Attribute{
			{Key: "type", Val: mediatypes.DerivativeFormat.MimeType()},
			{Key: "srcset", Val: plan.Srcset(srcURL, derivatives)},
		},
	}
	img.Parent.InsertBefore(source, img)

	v.refs = append(v.refs, plan.MediaReference{SourcePath: sourcePath, Policy: policy, Page: v.page})
	return nil
}

// resolve turns an img src into the source path relative to the output
// root and the URL path used to build the srcset.
func (v *visitor) resolve(src string) (sourcePath, urlPath string, err error) {
	invalid := func(reason string) error {
		return &mediaerr.MissingRequiredAttributeError{Page: v.page, Element: "img", Attribute: "src", Reason: reason}
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", "", invalid(fmt.Sprintf("unparsable src %q", src))
	}
	if u.Scheme != "" || u.Host != "" {
		return "", "", invalid(fmt.Sprintf("src %q is not a site-relative path", src))
	}

	urlPath = u.Path
	if strings.HasPrefix(urlPath, "/") {
		sourcePath = strings.TrimPrefix(path.Clean(urlPath), "/")
	} else {
		sourcePath = path.Join(path.Dir(v.page), urlPath)
	}
	if sourcePath == "" || sourcePath == "." || strings.HasPrefix(sourcePath, "../") {
		return "", "", invalid(fmt.Sprintf("src %q is outside the site", src))
	}
	if !mediatypes.IsOptimizable(path.Ext(sourcePath)) {
		return "", "", invalid(fmt.Sprintf("src %q is not a PNG, JPEG, GIF or WebP image", src))
	}
	return sourcePath, urlPath, nil
}

// wrapInPicture replaces img with <picture><img></picture> and returns img.
func wrapInPicture(img *html.Node) *html.Node {
	picture := &html.Node{Type: html.ElementNode, Data: "picture", DataAtom: atom.Lookup([]byte("picture"))}
	img.Parent.InsertBefore(picture, img)
	img.Parent.RemoveChild(img)
	picture.AppendChild(img)
	return img
}

func isPicture(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == "picture"
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var found []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			found = append(found, c)
		}
		found = append(found, findAll(c, a)...)
	}
	return found
}

func hasAnyAttr(n *html.Node, keys []string) bool {
	for _, a := range n.Attr {
		for _, k := range keys {
			if a.Namespace == "" && a.Key == k {
				return true
			}
		}
	}
	return false
}

func attrValue(n *html.Node, keys []string) string {
	for _, k := range keys {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == k {
				return a.Val
			}
		}
	}
	return ""
}

func removeAttrs(n *html.Node, keys []string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		drop := false
		for _, k := range keys {
			if a.Namespace == "" && a.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
