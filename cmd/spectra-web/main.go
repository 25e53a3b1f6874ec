//go:build !js && !wasm

package main

import (
	"flag"
	"log"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spectra-gallery/spectra/logging"
)

const category = "web"

func main() {
	listen := flag.String("listen", "127.0.0.1:4173", "address to serve the web client")
	staticDir := flag.String("dir", "web", "directory containing index.html, main.wasm and wasm_exec.js")
	apiTarget := flag.String("api", "http://127.0.0.1:8000", "origin of the Spectra API; /api is proxied there")
	flag.Parse()

	logger := logging.New(logging.INFO, os.Stdout)

	root, err := filepath.Abs(*staticDir)
	if err != nil {
		log.Fatalf("failed to resolve static directory: %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		log.Fatalf("static directory %s is invalid: %v", root, err)
	}

	apiURL, err := url.Parse(*apiTarget)
	if err != nil || apiURL.Scheme == "" {
		log.Fatalf("invalid API target %q: %v", *apiTarget, err)
	}

	server := &http.Server{
		Addr:              *listen,
		Handler:           newHandler(root, apiURL, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info(category, "serving web client", map[string]any{"dir": root, "addr": *listen, "api": apiURL.String()})
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newHandler(root string, api *url.URL, logger *logging.Logger) http.Handler {
	mime.AddExtensionType(".wasm", "application/wasm")

	mux := http.NewServeMux()
	mux.Handle("/api/", apiProxyHandler(api))
	mux.Handle("/", staticHandler(root))
	return withHTTPLogging(mux, logger)
}

func apiProxyHandler(target *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Host = target.Host
		proxy.ServeHTTP(w, r)
	})
}

func staticHandler(root string) http.Handler {
	fileServer := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "" {
			http.ServeFile(w, r, filepath.Join(root, "index.html"))
			return
		}
		if strings.HasSuffix(r.URL.Path, ".wasm") {
			w.Header().Set("Content-Type", "application/wasm")
		}
		fileServer.ServeHTTP(w, r)
	})
}

func withHTTPLogging(next http.Handler, logger *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(lrw, r)

		status := lrw.StatusCode()
		level := logging.INFO
		if status >= 500 {
			level = logging.ERROR
		} else if status >= 400 {
			level = logging.WARN
		}
		logger.Log(level, category, r.Method+" "+requestTarget(r), map[string]any{
			"status":      strconv.Itoa(status) + " " + http.StatusText(status),
			"bytes":       lrw.written,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      r.RemoteAddr,
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (lrw *statusRecorder) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *statusRecorder) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.written += n
	return n, err
}

func (lrw *statusRecorder) StatusCode() int {
	if lrw.status == 0 {
		return http.StatusOK
	}
	return lrw.status
}

func (lrw *statusRecorder) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func requestTarget(r *http.Request) string {
	if r == nil || r.URL == nil {
		return "/"
	}
	if uri := r.URL.RequestURI(); uri != "" {
		return uri
	}
	return "/"
}
