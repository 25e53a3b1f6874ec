//go:build js && wasm

package storage

import (
	"errors"
	"syscall/js"
)

// LocalStorage backs slots with window.localStorage.
type LocalStorage struct {
	storage js.Value
}

// NewLocalStorage binds to window.localStorage. It fails when the page has no
// storage (sandboxed iframes, disabled storage).
func NewLocalStorage() (*LocalStorage, error) {
	storage := js.Global().Get("localStorage")
	if !storage.Truthy() {
		return nil, errors.New("storage: localStorage unavailable")
	}
	return &LocalStorage{storage: storage}, nil
}

// Get implements Store.
func (l *LocalStorage) Get(key string) (string, bool) {
	value := l.storage.Call("getItem", key)
	if value.Type() != js.TypeString {
		return "", false
	}
	return value.String(), true
}

// Set implements Store.
func (l *LocalStorage) Set(key, value string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("storage: localStorage write rejected")
		}
	}()
	l.storage.Call("setItem", key, value)
	return nil
}

// Remove implements Store.
func (l *LocalStorage) Remove(key string) error {
	l.storage.Call("removeItem", key)
	return nil
}
