package browser

import (
	"context"

	"github.com/ysmood/gson"
)

// Driver is a single-owner browser session
type Driver interface {
	// Navigate starts loading url. It does not wait for the page to be ready.
	Navigate(ctx context.Context, url string) error
	// ExecuteScript evaluates a JavaScript function expression such as
	// "() => document.readyState" and returns its value
	ExecuteScript(ctx context.Context, js string) (gson.JSON, error)
	// Snapshot captures the current DOM
	Snapshot(ctx context.Context) (Snapshot, error)
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Factory creates a fresh Driver for one category run
type Factory func(ctx context.Context) (Driver, error)

// Scripts used by the scroll controller
const (
	ScriptReadyState     = `() => document.readyState`
	ScriptScrollToBottom = `() => { window.scrollTo(0, document.body.scrollHeight); return document.body.scrollHeight; }`
	ScriptLocation       = `() => window.location.href`
)
