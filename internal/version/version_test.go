package version

import (
	"strings"
	"testing"
)

func restore(t *testing.T) {
	v, bt, gc, gv := Version, BuildTime, GitCommit, GoVersion
	t.Cleanup(func() {
		Version, BuildTime, GitCommit, GoVersion = v, bt, gc, gv
	})
}

func TestSetInfo(t *testing.T) {
	restore(t)

	SetInfo("1.0.0", "2026-01-01T00:00:00Z", "abc123", "go1.26")

	if Version != "1.0.0" {
		t.Errorf("Version = %s, want 1.0.0", Version)
	}
	if BuildTime != "2026-01-01T00:00:00Z" {
		t.Errorf("BuildTime = %s", BuildTime)
	}
	if GitCommit != "abc123" {
		t.Errorf("GitCommit = %s, want abc123", GitCommit)
	}
	if GoVersion != "go1.26" {
		t.Errorf("GoVersion = %s, want go1.26", GoVersion)
	}
}

func TestSetInfoEmptyValues(t *testing.T) {
	restore(t)

	Version = "test-version"
	SetInfo("", "", "", "")

	if Version != "test-version" {
		t.Errorf("Version should not change with empty value, got %s", Version)
	}
}

func TestString(t *testing.T) {
	restore(t)
	SetInfo("1.2.3", "2026-06-15T10:30:00Z", "deadbeef", "go1.26")

	msg := String()
	for _, want := range []string{"tradiecrm 1.2.3", "deadbeef", "2026-06-15T10:30:00Z", "go1.26"} {
		if !strings.Contains(msg, want) {
			t.Errorf("String() = %q, missing %q", msg, want)
		}
	}

	if got := Fields()["commit"]; got != "deadbeef" {
		t.Errorf("Fields()[commit] = %q", got)
	}
}
