//go:build js && wasm

package dom

import (
	"errors"
	"syscall/js"
)

// BrowserDocument themes the live page.
type BrowserDocument struct {
	document js.Value
}

// NewBrowserDocument wraps window.document.
func NewBrowserDocument() (*BrowserDocument, error) {
	document := js.Global().Get("document")
	if !document.Truthy() {
		return nil, errors.New("dom: document unavailable")
	}
	return &BrowserDocument{document: document}, nil
}

// Value exposes the underlying js document.
func (d *BrowserDocument) Value() js.Value {
	return d.document
}

// SetRootAttribute sets an attribute on document.documentElement.
func (d *BrowserDocument) SetRootAttribute(name, value string) {
	root := d.document.Get("documentElement")
	if root.Truthy() {
		root.Call("setAttribute", name, value)
	}
}

// ReplaceStyle sets the text of the style element with id, appending one to
// document.head when missing.
func (d *BrowserDocument) ReplaceStyle(id, css string) {
	style := d.document.Call("getElementById", id)
	if !style.Truthy() {
		style = d.document.Call("createElement", "style")
		style.Set("id", id)
		head := d.document.Get("head")
		if !head.Truthy() {
			return
		}
		head.Call("appendChild", style)
	}
	style.Set("textContent", css)
}
