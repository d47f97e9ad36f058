package platform

import (
	"runtime"
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"windows", "Windows"},
		{"darwin", "macOS"},
		{"ios", "macOS"},
		{"linux", "linux"},
		{"freebsd", "freebsd"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Name(tt.goos); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestCurrent_Stable(t *testing.T) {
	first := Current()
	if first != Name(runtime.GOOS) {
		t.Errorf("Current() = %q, want %q", first, Name(runtime.GOOS))
	}
	for i := 0; i < 3; i++ {
		if got := Current(); got != first {
			t.Errorf("Current() changed between calls: %q vs %q", first, got)
		}
	}
}
