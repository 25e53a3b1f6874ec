package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spectra-gallery/spectra/logging"
)

// traceTo prints logger entries to w as they arrive. The returned func stops
// the trace after flushing what was already received.
func traceTo(logger *logging.Logger, w io.Writer) func() {
	ch := make(chan logging.Entry, 256)
	unsubscribe := logger.Subscribe(ch)
	quit := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case entry := <-ch:
				fmt.Fprintln(w, traceLine(entry))
			case <-quit:
				for {
					select {
					case entry := <-ch:
						fmt.Fprintln(w, traceLine(entry))
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		unsubscribe()
		close(quit)
		<-done
	}
}

func traceLine(e logging.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %-7s %s", e.Level, e.Category, e.Message)
	if e.Duration != nil {
		fmt.Fprintf(&b, " (%dms)", *e.Duration)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		if k == "request_headers" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	return b.String()
}
