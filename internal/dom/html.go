// Package dom provides theme.Document implementations: an in-memory HTML
// document backed by goquery and, under js/wasm, the live browser document.
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// HTMLDocument is a parsed HTML page that can be themed and rendered back.
type HTMLDocument struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// ParseHTML reads an HTML page. Missing html, head and body elements are
// synthesised by the parser.
func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTMLDocument{doc: doc}, nil
}

// NewHTMLDocument returns an empty page.
func NewHTMLDocument() *HTMLDocument {
	doc, err := ParseHTML(strings.NewReader("<!DOCTYPE html><html><head></head><body></body></html>"))
	if err != nil {
		// The literal above always parses.
		panic(err)
	}
	return doc
}

// SetRootAttribute sets an attribute on <html>.
func (d *HTMLDocument) SetRootAttribute(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find("html").First().SetAttr(name, value)
}

// RootAttribute returns an attribute of <html>.
func (d *HTMLDocument) RootAttribute(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find("html").First().Attr(name)
}

// ReplaceStyle sets the text of <style id="id">, appending one to <head> if needed.
func (d *HTMLDocument) ReplaceStyle(id, css string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	style := d.styleLocked(id)
	if style.Length() == 0 {
		d.doc.Find("head").First().AppendHtml(fmt.Sprintf(`<style id="%s"></style>`, id))
		style = d.styleLocked(id)
	}
	style.First().SetText(css)
}

// Style returns the text of <style id="id">.
func (d *HTMLDocument) Style(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	style := d.styleLocked(id)
	if style.Length() == 0 {
		return "", false
	}
	return style.First().Text(), true
}

func (d *HTMLDocument) styleLocked(id string) *goquery.Selection {
	return d.doc.Find("style").FilterFunction(func(_ int, s *goquery.Selection) bool {
		value, ok := s.Attr("id")
		return ok && value == id
	})
}

// Render writes the document as HTML.
func (d *HTMLDocument) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, err := d.doc.Html()
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
