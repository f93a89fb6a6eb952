package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgharvest/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug", NoColor: true}, false},
		{"invalid level", &config.LoggingConfig{Level: "loud"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf)

	derived := base.WithField("category", "polar_bear").WithFields(map[string]interface{}{
		"iteration": 3,
		"pause":     2 * time.Second,
	})
	derived.WithError(errors.New("boom")).Warn("scroll stalled")
	base.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "scroll stalled", lines[0]["message"])
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "polar_bear", lines[0]["category"])
	assert.Equal(t, float64(3), lines[0]["iteration"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "imgharvest", lines[0]["app"])

	// the base logger is not affected by derived fields
	_, ok := lines[1]["category"]
	assert.False(t, ok)
}

func TestInfoWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf).WithField("run_id", "abc")
	l.InfoWithFields("saved", map[string]interface{}{"path": "dataset/x/0000.jpg", "size": int64(9000)})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "abc", lines[0]["run_id"])
	assert.Equal(t, "dataset/x/0000.jpg", lines[0]["path"])
	assert.Equal(t, float64(9000), lines[0]["size"])
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "disabled", "INFO", ""} {
		_, err := parseLogLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := parseLogLevel("trace-everything")
	assert.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.WithField("a", 1).WithError(errors.New("x")).Error("ignored")
		l.InfoWithFields("ignored", nil)
	})
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("category", "brown_bear").WithError(errors.New("timeout")).Warn("page not ready")
	tl.Info("done")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "brown_bear", msgs[0].Fields["category"])
	assert.EqualError(t, msgs[0].Error, "timeout")
	assert.Nil(t, msgs[1].Error)

	assert.True(t, tl.HasMessage("done"))
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
	assert.Contains(t, tl.String(), "[WARN] page not ready")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogComponentStart(tl, "scroll", map[string]interface{}{"target": 8})
	LogScrollProgress(tl, 2, 5, 10, 20, time.Second)
	LogDownloadOutcome(tl, "https://example.com/a.jpg", "dataset/x/0000.jpg", 1, nil)
	LogDownloadOutcome(tl, "https://example.com/b.jpg", "", 2, errors.New("decode"))
	LogDownloadOutcome(tl, "https://example.com/c.jpg", "", 1, nil)
	LogRunSummary(tl, 5, 3, 5, "EXHAUSTED", time.Second)
	LogRunSummary(tl, 5, 5, 8, "CONVERGED", time.Second)
	LogComponentStop(tl, "scroll", "converged")

	assert.True(t, tl.HasMessage("Component started"))
	assert.True(t, tl.HasMessage("Scroll progress"))
	assert.True(t, tl.HasMessage("Image saved"))
	assert.True(t, tl.HasMessage("Candidate rejected"))
	assert.True(t, tl.HasMessage("Candidate skipped"))
	assert.True(t, tl.HasMessage("Category finished with shortfall"))
	assert.True(t, tl.HasMessage("Category finished"))
	assert.True(t, tl.HasMessage("Component stopped"))

	progress := tl.GetMessagesByLevel("DEBUG")[0]
	assert.Equal(t, "50.0%", progress.Fields["percentage"])
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	t.Cleanup(func() { SetLogger(nil) })

	WithField("k", "v").Info("global")
	assert.Same(t, tl, GetLogger())
	assert.True(t, tl.HasMessage("global"))
}
