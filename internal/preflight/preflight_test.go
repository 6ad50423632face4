package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"anilink/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryReadable_OK(t *testing.T) {
	result := CheckDirectoryReadable("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryReadable_NotExist(t *testing.T) {
	result := CheckDirectoryReadable("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
}

func TestCheckLinkCompatibility_SameFilesystem(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(base, "source")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	for _, dir := range []string{cfg.Paths.SourceDir, cfg.Paths.LibraryDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	result := CheckLinkCompatibility(&cfg)
	if !result.Passed {
		t.Fatalf("expected pass for sibling dirs, got: %s", result.Detail)
	}
}

func TestCheckLinkCompatibility_MissingSource(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(t.TempDir(), "nope")
	cfg.Paths.LibraryDir = t.TempDir()

	result := CheckLinkCompatibility(&cfg)
	if result.Passed {
		t.Fatal("expected failure for missing source dir")
	}
}

func TestCheckTMDB_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.TMDB.BaseURL = srv.URL
	cfg.TMDB.APIKey = "good-key"

	result := CheckTMDB(context.Background(), &cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckTMDB_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.TMDB.BaseURL = srv.URL
	cfg.TMDB.APIKey = "bad-key"

	result := CheckTMDB(context.Background(), &cfg)
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckTMDB_MissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.TMDB.APIKey = ""

	result := CheckTMDB(context.Background(), &cfg)
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_HealthyConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(base, "source")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	for _, dir := range []string{cfg.Paths.SourceDir, cfg.Paths.LibraryDir, cfg.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg.TMDB.BaseURL = srv.URL
	cfg.TMDB.APIKey = "test"

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if failed := Failures(results); len(failed) != 0 {
		t.Fatalf("expected no failures, got %d", len(failed))
	}
}

func TestFailuresFiltersFailedChecks(t *testing.T) {
	results := []Result{
		{Name: "a", Passed: true},
		{Name: "b", Passed: false, Detail: "broken"},
		{Name: "c", Passed: false, Detail: "also broken"},
	}
	failed := Failures(results)
	if len(failed) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failed))
	}
	if failed[0].Name != "b" || failed[1].Name != "c" {
		t.Fatalf("unexpected failure order: %+v", failed)
	}
}
