package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestCurrent(t *testing.T) {
	b := Current()
	switch {
	case b.Version == "":
		t.Error("version should not be empty")
	case b.Commit == "":
		t.Error("commit should not be empty")
	case b.Date == "":
		t.Error("date should not be empty")
	case b.GoVersion != runtime.Version():
		t.Errorf("expected go version %s, got %s", runtime.Version(), b.GoVersion)
	}
	if GetVersion() != b.Version {
		t.Errorf("GetVersion (%s) should match Current (%s)", GetVersion(), b.Version)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date=", "go="} {
		if !strings.Contains(s, part) {
			t.Errorf("String should contain %q, got %q", part, s)
		}
	}
}
