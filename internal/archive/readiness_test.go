package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/andresuchdata/video-archiver/internal/storage"
)

func TestReady(t *testing.T) {
	now := time.Date(2012, 7, 4, 12, 0, 0, 0, time.UTC)
	window := time.Hour

	tests := []struct {
		name         string
		lastModified time.Time
		want         bool
	}{
		{"modified right now", now, false},
		{"two hours old", now.Add(-2 * time.Hour), true},
		{"exactly one window old", now.Add(-window), true},
		{"one second inside the window", now.Add(-window + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := storage.ObjectInfo{Key: "abc123.mp4/abc123.mp4", LastModified: tt.lastModified}
			assert.Equal(t, tt.want, ready(obj, window, now))
		})
	}
}
