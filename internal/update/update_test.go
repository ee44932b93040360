package update

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v2.0.0", "1.9.9", true},
		{"1.2.3", "1.2.3", false},
		{"1.2.3", "1.10.0", false},
		{"1.3.0-rc1", "1.2.0", true},
	}
	for _, tt := range tests {
		if got := isNewerVersion(tt.a, tt.b); got != tt.want {
			t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestInstallMethodFor(t *testing.T) {
	tests := []struct {
		path string
		want InstallMethod
	}{
		{"/opt/homebrew/Cellar/autopilot/1.0.0/bin/autopilot", InstallHomebrew},
		{"/home/linuxbrew/.linuxbrew/bin/autopilot", InstallHomebrew},
		{"/usr/local/bin/autopilot", InstallBinary},
	}
	for _, tt := range tests {
		if got := installMethodFor(tt.path); got != tt.want {
			t.Errorf("installMethodFor(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCheck_DevBuildSkipsLookup(t *testing.T) {
	c := &Checker{Latest: func(context.Context) (*Release, error) {
		t.Fatal("lookup should not run for dev builds")
		return nil, nil
	}}
	if _, newer, err := c.Check(context.Background(), "dev"); newer || err != nil {
		t.Errorf("Check(dev) = %v, %v", newer, err)
	}
}

func TestNotice_CachesResult(t *testing.T) {
	calls := 0
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &Checker{
		CachePath: filepath.Join(t.TempDir(), "cache.json"),
		Now:       func() time.Time { return now },
		Latest: func(context.Context) (*Release, error) {
			calls++
			return &Release{Version: "1.4.0"}, nil
		},
	}

	notice := c.Notice(context.Background(), "1.3.0")
	if !strings.Contains(notice, "1.3.0 -> 1.4.0") {
		t.Errorf("Notice() = %q", notice)
	}
	if again := c.Notice(context.Background(), "1.3.0"); again != notice || calls != 1 {
		t.Errorf("second Notice() = %q after %d lookups, want cached", again, calls)
	}

	// Upgrading since the cache was written silences the notice.
	if got := c.Notice(context.Background(), "1.4.0"); got != "" {
		t.Errorf("Notice() after upgrade = %q, want empty", got)
	}

	now = now.Add(25 * time.Hour)
	c.Notice(context.Background(), "1.4.0")
	if calls != 2 {
		t.Errorf("lookups = %d, want a fresh check after a day", calls)
	}
}

func TestNotice_LookupError(t *testing.T) {
	c := &Checker{
		CachePath: filepath.Join(t.TempDir(), "cache.json"),
		Latest: func(context.Context) (*Release, error) {
			return nil, errors.New("rate limited")
		},
	}
	if got := c.Notice(context.Background(), "1.0.0"); got != "" {
		t.Errorf("Notice() = %q, want empty on error", got)
	}
}
