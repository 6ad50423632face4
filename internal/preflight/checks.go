package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"anilink/internal/config"
)

// CheckDirectoryAccess verifies that path exists, is a directory, and is
// readable, writable, and traversable by the current process.
func CheckDirectoryAccess(name, path string) Result {
	result := Result{Name: name}
	info, err := os.Stat(path)
	if err != nil {
		result.Detail = fmt.Sprintf("stat failed: %v", err)
		return result
	}
	if !info.IsDir() {
		result.Detail = "not a directory"
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("permission check failed: %v", err)
		return result
	}
	result.Passed = true
	result.Detail = path
	return result
}

// CheckDirectoryReadable verifies read and traversal access without requiring
// write permission. Source trees are never written to.
func CheckDirectoryReadable(name, path string) Result {
	result := Result{Name: name}
	info, err := os.Stat(path)
	if err != nil {
		result.Detail = fmt.Sprintf("stat failed: %v", err)
		return result
	}
	if !info.IsDir() {
		result.Detail = "not a directory"
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("permission check failed: %v", err)
		return result
	}
	result.Passed = true
	result.Detail = path
	return result
}

// CheckLinkCompatibility reports whether the source and library trees share a
// filesystem. Hard links cannot cross devices, so a split only passes when a
// fallback policy is configured.
func CheckLinkCompatibility(cfg *config.Config) Result {
	result := Result{Name: "Hard link compatibility"}

	var source, library unix.Stat_t
	if err := unix.Stat(cfg.Paths.SourceDir, &source); err != nil {
		result.Detail = fmt.Sprintf("stat source: %v", err)
		return result
	}
	if err := unix.Stat(cfg.Paths.LibraryDir, &library); err != nil {
		result.Detail = fmt.Sprintf("stat library: %v", err)
		return result
	}

	if source.Dev == library.Dev {
		result.Passed = true
		result.Detail = "source and library share a filesystem"
		return result
	}

	if cfg.Linker.OnCrossDevice == "fail" {
		result.Detail = "source and library are on different filesystems and on_cross_device is \"fail\""
		return result
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("different filesystems, falling back to %s", cfg.Linker.OnCrossDevice)
	return result
}

// CheckTMDB verifies the configured API key against the TMDB configuration
// endpoint.
func CheckTMDB(ctx context.Context, cfg *config.Config) Result {
	result := Result{Name: "TMDB API"}
	if cfg.TMDB.APIKey == "" {
		result.Detail = "api_key is not configured"
		return result
	}

	endpoint, err := url.Parse(cfg.TMDB.BaseURL + "/configuration")
	if err != nil {
		result.Detail = fmt.Sprintf("invalid base URL: %v", err)
		return result
	}
	query := endpoint.Query()
	query.Set("api_key", cfg.TMDB.APIKey)
	endpoint.RawQuery = query.Encode()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		result.Detail = fmt.Sprintf("build request: %v", err)
		return result
	}
	resp, err := client.Do(req)
	if err != nil {
		result.Detail = fmt.Sprintf("connection failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		result.Passed = true
		result.Detail = "API key accepted"
	case resp.StatusCode == http.StatusUnauthorized:
		result.Detail = "API key rejected"
	default:
		result.Detail = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result
}
