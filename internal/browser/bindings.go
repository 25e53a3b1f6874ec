//go:build js && wasm

package browser

import (
	"context"
	"syscall/js"

	"github.com/spectra-gallery/spectra/logging"

	"github.com/spectra-gallery/spectra/internal/app"
	"github.com/spectra-gallery/spectra/internal/session"
)

// exposeAPI publishes window.spectra so page scripts can drive the session
// and theme stores. Network calls return Promises.
func exposeAPI(a *app.App) {
	api := js.Global().Get("Object").New()
	bind := func(name string, fn func(this js.Value, args []js.Value) any) {
		f := js.FuncOf(fn)
		handlers = append(handlers, f)
		api.Set(name, f)
	}

	bind("login", func(this js.Value, args []js.Value) any {
		username, password := argString(args, 0), argString(args, 1)
		return promise(func() (any, error) {
			if err := a.Session.Login(context.Background(), username, password); err != nil {
				return nil, err
			}
			return stateObject(a.Session.State()), nil
		})
	})
	bind("logout", func(this js.Value, args []js.Value) any {
		a.Session.Logout()
		return nil
	})
	bind("register", func(this js.Value, args []js.Value) any {
		username, email, password := argString(args, 0), argString(args, 1), argString(args, 2)
		return promise(func() (any, error) {
			result := a.Session.Register(context.Background(), username, email, password)
			out := map[string]any{"success": result.Success}
			if result.Error != "" {
				out["error"] = result.Error
			}
			if result.User != nil {
				out["user"] = map[string]any{"id": result.User.ID, "username": result.User.Username, "email": result.User.Email}
			}
			return out, nil
		})
	})
	bind("toggleTheme", func(this js.Value, args []js.Value) any {
		return a.Theme.Toggle()
	})
	bind("theme", func(this js.Value, args []js.Value) any {
		return a.Theme.Value()
	})
	bind("state", func(this js.Value, args []js.Value) any {
		return stateObject(a.Session.State())
	})
	bind("setLogLevel", func(this js.Value, args []js.Value) any {
		level, err := logging.ParseLevel(argString(args, 0))
		if err != nil {
			return js.Global().Get("Error").New(err.Error())
		}
		a.Logger.SetLevel(level)
		return level.String()
	})
	bind("onLog", func(this js.Value, args []js.Value) any {
		if len(args) == 0 || args[0].Type() != js.TypeFunction {
			return nil
		}
		cb := args[0]
		ch := make(chan logging.Entry, 64)
		unsubscribe := a.Logger.Subscribe(ch)
		stop := make(chan struct{})
		go func() {
			for {
				select {
				case entry := <-ch:
					cb.Invoke(entryObject(entry))
				case <-stop:
					return
				}
			}
		}()
		var cancel js.Func
		cancel = js.FuncOf(func(this js.Value, args []js.Value) any {
			unsubscribe()
			close(stop)
			cancel.Release()
			return nil
		})
		return cancel
	})
	bind("onSession", func(this js.Value, args []js.Value) any {
		if len(args) == 0 || args[0].Type() != js.TypeFunction {
			return nil
		}
		cb := args[0]
		a.Session.Subscribe(func(st session.State) {
			cb.Invoke(stateObject(st))
		})
		return nil
	})

	js.Global().Set("spectra", api)
}

func argString(args []js.Value, i int) string {
	if i >= len(args) || args[i].Type() != js.TypeString {
		return ""
	}
	return args[i].String()
}

// stateObject converts State into a plain value js.ValueOf accepts.
func stateObject(st session.State) map[string]any {
	out := map[string]any{
		"isAuthenticated": st.IsAuthenticated,
		"loading":         st.Loading,
		"error":           nil,
		"user":            nil,
	}
	if st.Error != "" {
		out["error"] = st.Error
	}
	if st.User != nil {
		out["user"] = map[string]any{
			"id":       st.User.ID,
			"username": st.User.Username,
			"email":    st.User.Email,
			"role":     string(st.User.Role),
		}
	}
	return out
}

func entryObject(e logging.Entry) map[string]any {
	out := map[string]any{
		"time":     e.Timestamp.Format("15:04:05.000"),
		"level":    e.Level,
		"category": e.Category,
		"message":  e.Message,
	}
	if e.Error != "" {
		out["error"] = e.Error
	}
	if e.Duration != nil {
		out["durationMs"] = *e.Duration
	}
	return out
}

// promise runs fn on a goroutine and settles a JS Promise with its result.
func promise(fn func() (any, error)) js.Value {
	var executor js.Func
	executor = js.FuncOf(func(this js.Value, args []js.Value) any {
		resolve, reject := args[0], args[1]
		go func() {
			defer executor.Release()
			value, err := fn()
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(value)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(executor)
}
