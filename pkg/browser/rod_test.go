package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgharvest/pkg/config"
	"imgharvest/pkg/logger"
)

func TestRodDriver(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local Chromium found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body style="height:5000px"><img src="/a.jpg" data-src="/lazy.jpg"></body></html>`)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Browser.BrowserBin = bin
	cfg.Browser.NoSandbox = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := NewRodDriver(ctx, cfg.Browser, cfg.Fetch, logger.NewNopLogger())
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Navigate(ctx, srv.URL))

	require.Eventually(t, func() bool {
		state, err := d.ExecuteScript(ctx, ScriptReadyState)
		return err == nil && state.Str() == "complete"
	}, 10*time.Second, 100*time.Millisecond)

	_, err = d.ExecuteScript(ctx, ScriptScrollToBottom)
	require.NoError(t, err)

	snap, err := d.Snapshot(ctx)
	require.NoError(t, err)
	imgs, err := snap.Query("img[data-src]")
	require.NoError(t, err)
	assert.Len(t, imgs, 1)
	assert.Contains(t, snap.URL(), srv.URL)

	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close(), "second close is a no-op")
}
