// Package update implements self-update from GitHub releases.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"
)

const releaseAPI = "https://api.github.com/repos/GoCodeAlone/warden/releases/latest"

// Release is an available newer version.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

type ghRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// Updater checks for and applies binary updates.
type Updater struct {
	current string
	client  *http.Client
	apiURL  string
}

// New returns an Updater for the given running version.
func New(currentVersion string) *Updater {
	return &Updater{
		current: currentVersion,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiURL:  releaseAPI,
	}
}

// Check queries for the latest release. It returns nil when the running
// build is already current, or is a dev build.
func (u *Updater) Check(ctx context.Context) (*Release, error) {
	if u.current == "dev" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "warden/"+u.current)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API returned %d", resp.StatusCode)
	}

	var rel ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	if strings.TrimPrefix(rel.TagName, "v") == strings.TrimPrefix(u.current, "v") {
		return nil, nil
	}

	// Release assets are named warden_<os>_<arch>.
	arch := runtime.GOARCH
	if arch == "amd64" {
		arch = "x86_64"
	}
	for _, a := range rel.Assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, runtime.GOOS) && strings.Contains(name, arch) {
			return &Release{Version: rel.TagName, URL: a.BrowserDownloadURL}, nil
		}
	}
	return nil, fmt.Errorf("no release asset for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// Apply downloads the release and swaps it in over the running executable.
func (u *Updater) Apply(ctx context.Context, rel *Release) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	tmp, err := os.CreateTemp("", "warden-update-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rel.URL, nil)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("download release: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("download returned %d", resp.StatusCode)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, exe); err != nil {
		return fmt.Errorf("replace binary: %w", err)
	}
	return nil
}
