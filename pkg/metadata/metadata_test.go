package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{1920, 1080, "16:9"},
		{800, 600, "4:3"},
		{500, 500, "1:1"},
		{1080, 1920, "9:16"},
		{300, 400, "3:4"},
		{300, 100, "3.00:1"},
		{10, 0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AspectRatio(tt.w, tt.h))
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Category:    "cats",
		Query:       "cat photo",
		RunID:       "run-1",
		Requested:   2,
		Achieved:    1,
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Images: []ImageRecord{
			NewImageRecord(dir+"/0000.jpg", "https://img.example.com/a.jpg", 640, 480, 20480, 1),
		},
	}

	path, err := m.Save(dir)
	require.NoError(t, err)
	assert.FileExists(t, path)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
	assert.Equal(t, "0000.jpg", loaded.Images[0].File)
	assert.Equal(t, "jpg", loaded.Images[0].Format)
	assert.Equal(t, "4:3", loaded.Images[0].AspectRatio)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
