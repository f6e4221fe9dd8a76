package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	Version, Commit = "1.2.3", "abc123"
	got := String()
	if !strings.Contains(got, "1.2.3") || !strings.Contains(got, "abc123") {
		t.Fatalf("unexpected version string %q", got)
	}
}
