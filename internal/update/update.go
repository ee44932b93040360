// Package update checks GitHub releases and replaces the running binary.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/edsandoval/autopilot/internal/config"
)

const (
	repoOwner     = "edsandoval"
	repoName      = "autopilot"
	checkInterval = 24 * time.Hour
)

// updateCache stores the last update check result.
type updateCache struct {
	LastCheck       time.Time `json:"last_check"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Checker looks up releases. The zero value uses GitHub and the
// per-user cache file.
type Checker struct {
	// CachePath overrides the cache file location.
	CachePath string
	// Latest overrides the release lookup, mainly for tests.
	Latest func(ctx context.Context) (*Release, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Release describes a published version.
type Release struct {
	Version    string
	ReleaseURL string
}

// InstallMethod represents how the binary was installed.
type InstallMethod int

const (
	InstallUnknown InstallMethod = iota
	InstallHomebrew
	InstallBinary
)

func (m InstallMethod) String() string {
	switch m {
	case InstallHomebrew:
		return "homebrew"
	case InstallBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// DetectInstallMethod inspects the executable path.
func DetectInstallMethod() InstallMethod {
	exe, err := os.Executable()
	if err != nil {
		return InstallUnknown
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return InstallUnknown
	}
	return installMethodFor(exe)
}

func installMethodFor(exe string) InstallMethod {
	if strings.Contains(exe, "/Cellar/") ||
		strings.HasPrefix(exe, "/opt/homebrew/") ||
		strings.HasPrefix(exe, "/usr/local/Homebrew/") ||
		strings.Contains(exe, "linuxbrew") {
		return InstallHomebrew
	}
	return InstallBinary
}

func isDevBuild(version string) bool {
	v := strings.TrimPrefix(version, "v")
	return v == "" || v == "dev"
}

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("creating GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: source})
	if err != nil {
		return nil, fmt.Errorf("creating updater: %w", err)
	}
	return updater, nil
}

func detectLatest(ctx context.Context) (*selfupdate.Release, error) {
	updater, err := newUpdater()
	if err != nil {
		return nil, err
	}
	latest, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, fmt.Errorf("detecting latest version: %w", err)
	}
	if !found {
		return nil, nil
	}
	return latest, nil
}

func (c *Checker) latest(ctx context.Context) (*Release, error) {
	if c.Latest != nil {
		return c.Latest(ctx)
	}
	rel, err := detectLatest(ctx)
	if err != nil || rel == nil {
		return nil, err
	}
	return &Release{Version: rel.Version(), ReleaseURL: rel.URL}, nil
}

// Check reports the latest release and whether it is newer than current.
func (c *Checker) Check(ctx context.Context, current string) (*Release, bool, error) {
	if isDevBuild(current) {
		return nil, false, nil
	}
	rel, err := c.latest(ctx)
	if err != nil || rel == nil {
		return nil, false, err
	}
	return rel, isNewerVersion(rel.Version, current), nil
}

// Notice returns a one-line update notice, checking at most once per
// day. It returns "" when up to date or when the check fails.
func (c *Checker) Notice(ctx context.Context, current string) string {
	if isDevBuild(current) {
		return ""
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	if cache := c.loadCache(); cache != nil && now().Sub(cache.LastCheck) < checkInterval {
		if cache.UpdateAvailable && isNewerVersion(cache.LatestVersion, current) {
			return formatNotice(current, cache.LatestVersion, DetectInstallMethod())
		}
		return ""
	}

	rel, newer, err := c.Check(ctx, current)
	next := &updateCache{LastCheck: now(), UpdateAvailable: newer && err == nil}
	if rel != nil {
		next.LatestVersion = rel.Version
	}
	c.saveCache(next)

	if err != nil || !newer {
		return ""
	}
	return formatNotice(current, rel.Version, DetectInstallMethod())
}

// Update replaces the running executable with the latest release.
func Update(ctx context.Context, current string) (string, error) {
	if DetectInstallMethod() == InstallHomebrew {
		return "", fmt.Errorf("installed via Homebrew, run: brew upgrade %s", repoName)
	}
	if isDevBuild(current) {
		return "", fmt.Errorf("cannot update dev builds")
	}

	latest, err := detectLatest(ctx)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "", fmt.Errorf("no releases found")
	}
	if !latest.GreaterThan(strings.TrimPrefix(current, "v")) {
		return "", fmt.Errorf("already at latest version (%s)", current)
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	updater, err := newUpdater()
	if err != nil {
		return "", err
	}
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return "", fmt.Errorf("updating: %w", err)
	}
	return latest.Version(), nil
}

func (c *Checker) cachePath() string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return filepath.Join(config.Dir(), "update-cache.json")
}

func (c *Checker) loadCache() *updateCache {
	data, err := os.ReadFile(c.cachePath())
	if err != nil {
		return nil
	}
	var cache updateCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return &cache
}

func (c *Checker) saveCache(cache *updateCache) {
	path := c.cachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// isNewerVersion reports whether a is a later major.minor.patch than b.
func isNewerVersion(a, b string) bool {
	parse := func(v string) [3]int {
		var out [3]int
		v = strings.TrimPrefix(v, "v")
		if i := strings.IndexAny(v, "-+"); i >= 0 {
			v = v[:i]
		}
		for i, part := range strings.SplitN(v, ".", 3) {
			_, _ = fmt.Sscanf(part, "%d", &out[i])
		}
		return out
	}
	av, bv := parse(a), parse(b)
	for i := range av {
		if av[i] != bv[i] {
			return av[i] > bv[i]
		}
	}
	return false
}

func formatNotice(current, latest string, method InstallMethod) string {
	cmd := repoName + " upgrade"
	if method == InstallHomebrew {
		cmd = "brew upgrade " + repoName
	}
	return fmt.Sprintf("Update available: %s -> %s (run: %s)", current, latest, cmd)
}
