//go:build js && wasm

package main

import "github.com/spectra-gallery/spectra/internal/browser"

func main() {
	browser.RunApp()
}
