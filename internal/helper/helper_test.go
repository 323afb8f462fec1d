package helper

import (
	"testing"
)

func TestDetectArchive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  []byte
		expected ArchiveKind
	}{
		{"gzip", []byte{31, 139, 8, 0, 0, 0}, KindGzip},
		{"zip", []byte{80, 75, 3, 4, 20, 0}, KindZip},
		{"empty zip", []byte{80, 75, 5, 6}, KindZip},
		{"xml", []byte(`<?xml version="1.0"?>`), KindNone},
		{"empty", nil, KindNone},
		{"short", []byte{31}, KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectArchive(tt.content); got != tt.expected {
				t.Errorf("DetectArchive() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsSupportedArchive(t *testing.T) {
	t.Parallel()

	if !IsSupportedArchive([]byte{31, 139, 8}) {
		t.Error("gzip magic not detected")
	}
	if IsSupportedArchive([]byte("<feedback></feedback>")) {
		t.Error("xml detected as archive")
	}
}
