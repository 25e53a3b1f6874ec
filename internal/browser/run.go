//go:build js && wasm

// Package browser boots the Spectra client inside a page: localStorage slots,
// the live document for theming, and a window.spectra handle for page scripts.
package browser

import (
	"context"
	"strings"
	"syscall/js"

	"github.com/spectra-gallery/spectra/internal/app"
	"github.com/spectra-gallery/spectra/internal/config"
	"github.com/spectra-gallery/spectra/internal/dom"
	"github.com/spectra-gallery/spectra/internal/session"
	"github.com/spectra-gallery/spectra/internal/storage"
	"github.com/spectra-gallery/spectra/logging"
)

const category = "browser"

var (
	// Document references the global browser document for DOM interactions.
	Document js.Value
	// handlers keeps bound callbacks alive for the page lifetime.
	handlers []js.Func
)

// RunApp bootstraps the Spectra WASM client and blocks forever.
func RunApp() {
	done := make(chan struct{})
	window := js.Global()
	Document = window.Get("document")
	logger := logging.New(levelFromPage(), consoleWriter{})

	var slots storage.Store
	if local, err := storage.NewLocalStorage(); err == nil {
		slots = local
	} else {
		logger.Warn(category, "localStorage unavailable, session will not persist", map[string]any{"error": err.Error()})
		slots = storage.NewMemory(nil)
	}

	var doc *dom.BrowserDocument
	if d, err := dom.NewBrowserDocument(); err == nil {
		doc = d
	}

	cfg := config.Default()
	cfg.API.BaseURL = apiBase(window)
	opts := app.Options{
		Config:     cfg,
		Slots:      slots,
		Logger:     logger,
		FetchTheme: true,
	}
	if doc != nil {
		opts.Document = doc
	}
	a, err := app.New(context.Background(), opts)
	if err != nil {
		logger.Error(category, "start client", err, nil)
		<-done
		return
	}

	bindThemeToggle(a)
	bindSessionStatus(a)
	bindLoginForm(a)
	bindActivityLog(a)
	exposeAPI(a)
	<-done
}

// apiBase honours <meta name="spectra-api" content="..."> and falls back to
// /api/v1 on the page origin. Relative values are resolved against the origin.
func apiBase(window js.Value) string {
	origin := window.Get("location").Get("origin").String()
	if Document.Truthy() {
		meta := Document.Call("querySelector", `meta[name="spectra-api"]`)
		if meta.Truthy() && meta.Call("getAttribute", "content").Type() == js.TypeString {
			content := strings.TrimSpace(meta.Call("getAttribute", "content").String())
			switch {
			case strings.HasPrefix(content, "/"):
				return origin + content
			case content != "":
				return content
			}
		}
	}
	return origin + "/api/v1"
}

func levelFromPage() logging.Level {
	if !Document.Truthy() {
		return logging.WARN
	}
	root := Document.Get("documentElement")
	if !root.Truthy() {
		return logging.WARN
	}
	value := root.Call("getAttribute", "data-log-level")
	if value.Type() != js.TypeString {
		return logging.WARN
	}
	level, err := logging.ParseLevel(value.String())
	if err != nil {
		return logging.WARN
	}
	return level
}

// consoleWriter forwards encoded log lines to console.log.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	console := js.Global().Get("console")
	if console.Truthy() {
		console.Call("log", strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

func byID(id string) js.Value {
	if !Document.Truthy() {
		return js.Null()
	}
	return Document.Call("getElementById", id)
}

func bindThemeToggle(a *app.App) {
	button := byID("themeToggle")
	if !button.Truthy() {
		return
	}
	label := func(name string) {
		if name == "dark" {
			button.Set("textContent", "☀ Light mode")
		} else {
			button.Set("textContent", "☾ Dark mode")
		}
	}
	a.Theme.Subscribe(label)
	click := js.FuncOf(func(this js.Value, args []js.Value) any {
		a.Theme.Toggle()
		return nil
	})
	handlers = append(handlers, click)
	button.Call("addEventListener", "click", click)
}

func bindSessionStatus(a *app.App) {
	status := byID("session-status")
	if !status.Truthy() {
		return
	}
	a.Session.Subscribe(func(st session.State) {
		switch {
		case st.Loading:
			status.Set("textContent", "Working…")
		case st.IsAuthenticated && st.User != nil:
			status.Set("textContent", "Signed in as "+st.User.Username)
		case st.Error != "":
			status.Set("textContent", st.Error)
		default:
			status.Set("textContent", "Not signed in")
		}
	})
}

func bindLoginForm(a *app.App) {
	form := byID("login-form")
	if !form.Truthy() {
		return
	}
	submit := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			args[0].Call("preventDefault")
		}
		username := inputValue("login-username")
		password := inputValue("login-password")
		go func() {
			if err := a.Session.Login(context.Background(), username, password); err == nil {
				if field := byID("login-password"); field.Truthy() {
					field.Set("value", "")
				}
			}
		}()
		return nil
	})
	handlers = append(handlers, submit)
	form.Call("addEventListener", "submit", submit)

	if logout := byID("logout"); logout.Truthy() {
		click := js.FuncOf(func(this js.Value, args []js.Value) any {
			a.Session.Logout()
			return nil
		})
		handlers = append(handlers, click)
		logout.Call("addEventListener", "click", click)
	}
}

// bindActivityLog streams session and theme entries into #activity-log.
// The panel opts the page into DEBUG so state transitions show up.
func bindActivityLog(a *app.App) {
	panel := byID("activity-log")
	if !panel.Truthy() {
		return
	}
	a.Logger.SetLevel(logging.DEBUG)
	ch := make(chan logging.Entry, 64)
	a.Logger.Subscribe(ch)
	go func() {
		for entry := range ch {
			if entry.Category != "session" && entry.Category != "theme" {
				continue
			}
			line := Document.Call("createElement", "li")
			line.Set("className", "log-"+strings.ToLower(entry.Level))
			text := entry.Timestamp.Format("15:04:05") + " " + entry.Category + ": " + entry.Message
			if entry.Error != "" {
				text += " (" + entry.Error + ")"
			}
			line.Set("textContent", text)
			panel.Call("prepend", line)
			for panel.Get("childElementCount").Int() > 50 {
				panel.Get("lastElementChild").Call("remove")
			}
		}
	}()
}

func inputValue(id string) string {
	field := byID(id)
	if !field.Truthy() {
		return ""
	}
	return strings.TrimSpace(field.Get("value").String())
}
