// Package browsertest provides a scripted browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/ysmood/gson"

	"imgharvest/pkg/browser"
)

// Frame is the page content served by the fake at one point in time
type Frame struct {
	URL  string
	HTML string
	Err  error
}

// Driver is a fake browser.Driver whose DOM advances one Frame per scroll.
// Once the frames run out the last one is repeated.
type Driver struct {
	mu sync.Mutex

	Frames []Frame
	// FrameFunc, when set, picks the frame from the scroll and snapshot
	// counters instead of Frames
	FrameFunc func(scrolls, snapshots int) Frame
	// LoadingPolls is how many readyState polls report "loading" first
	LoadingPolls int
	// NeverReady keeps readyState at "loading" forever
	NeverReady  bool
	NavigateErr error

	navigated  []string
	scripts    []string
	scrolls    int
	snapshots  int
	readyPolls int
	closed     int
}

// NewDriver creates a fake serving frames in scroll order
func NewDriver(frames ...Frame) *Driver {
	return &Driver{Frames: frames}
}

// Factory returns a browser.Factory that always hands out d
func (d *Driver) Factory() browser.Factory {
	return func(context.Context) (browser.Driver, error) {
		return d, nil
	}
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	return d.NavigateErr
}

func (d *Driver) ExecuteScript(ctx context.Context, js string) (gson.JSON, error) {
	if err := ctx.Err(); err != nil {
		return gson.JSON{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, js)

	switch js {
	case browser.ScriptReadyState:
		d.readyPolls++
		if d.NeverReady || d.readyPolls <= d.LoadingPolls {
			return gson.New("loading"), nil
		}
		return gson.New("complete"), nil
	case browser.ScriptScrollToBottom:
		d.scrolls++
		return gson.New(1000 * (d.scrolls + 1)), nil
	default:
		return gson.New(nil), nil
	}
}

func (d *Driver) Snapshot(ctx context.Context) (browser.Snapshot, error) {
	d.mu.Lock()
	frame := d.currentFrame()
	d.snapshots++
	d.mu.Unlock()

	if frame.Err != nil {
		return nil, frame.Err
	}
	return browser.NewSnapshot(frame.HTML, frame.URL)
}

func (d *Driver) currentFrame() Frame {
	if d.FrameFunc != nil {
		return d.FrameFunc(d.scrolls, d.snapshots)
	}
	if len(d.Frames) == 0 {
		return Frame{Err: errors.New("no frames scripted")}
	}
	i := d.scrolls
	if i >= len(d.Frames) {
		i = len(d.Frames) - 1
	}
	return d.Frames[i]
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Closed returns how many times Close was called
func (d *Driver) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Scrolls returns how many scroll scripts ran
func (d *Driver) Scrolls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrolls
}

// Navigated returns the URLs passed to Navigate
func (d *Driver) Navigated() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigated...)
}
