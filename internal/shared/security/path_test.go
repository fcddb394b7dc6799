package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveWithinScanDirectories(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		dir     string
		want    string
		escapes bool
	}{
		{name: "site directory", dir: "site", want: filepath.Join(root, "site")},
		{name: "nested docs", dir: "sites/blog/public", want: filepath.Join(root, "sites", "blog", "public")},
		{name: "root itself", dir: ".", want: root},
		{name: "dot segments stay inside", dir: "site/../blog/./public", want: filepath.Join(root, "blog", "public")},
		{name: "absolute request is re-rooted", dir: "/var/www", want: filepath.Join(root, "var", "www")},
		{name: "parent", dir: "..", escapes: true},
		{name: "sibling of root", dir: "../other-site", escapes: true},
		{name: "climb out through a subdirectory", dir: "site/../../etc", escapes: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(root, tt.dir)
			if tt.escapes {
				if !errors.Is(err, ErrPathEscape) {
					t.Fatalf("expected ErrPathEscape for %q, got %v", tt.dir, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWithin(%q) returned error: %v", tt.dir, err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestResolveWithinSnapshotFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	id := "6f1c2a4e-2b0c-4d7e-9a51-0d3f6c1b2a10"

	got, err := ResolveWithin(dir, id+".json")
	if err != nil {
		t.Fatalf("ResolveWithin returned error: %v", err)
	}
	if filepath.Dir(got) != dir || filepath.Base(got) != id+".json" {
		t.Fatalf("expected %s inside %s, got %s", id+".json", dir, got)
	}

	if _, err := ResolveWithin(dir, "../violations.jsonl"); !errors.Is(err, ErrPathEscape) {
		t.Fatalf("expected a file next to the snapshot dir to be rejected, got %v", err)
	}
}

func TestResolveWithinRelativeDataDir(t *testing.T) {
	t.Chdir(t.TempDir())

	got, err := ResolveWithin("data", "snapshots")
	if err != nil {
		t.Fatalf("ResolveWithin returned error: %v", err)
	}
	if !filepath.IsAbs(got) || !strings.HasSuffix(got, filepath.Join("data", "snapshots")) {
		t.Fatalf("expected an absolute path ending in data/snapshots, got %s", got)
	}
}

func TestResolveWithinSymlinkedScanRoot(t *testing.T) {
	base := t.TempDir()
	release := filepath.Join(base, "releases", "v2")
	if err := os.MkdirAll(filepath.Join(release, "site"), 0o755); err != nil {
		t.Fatalf("failed to create release dir: %v", err)
	}
	link := filepath.Join(base, "current")
	if err := os.Symlink(release, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	// Confinement is lexical: the link is not resolved, so results stay
	// under the path the server was started with.
	got, err := ResolveWithin(link, "site")
	if err != nil {
		t.Fatalf("ResolveWithin returned error: %v", err)
	}
	if got != filepath.Join(link, "site") {
		t.Fatalf("expected %s, got %s", filepath.Join(link, "site"), got)
	}
	if info, err := os.Stat(got); err != nil || !info.IsDir() {
		t.Fatalf("expected resolved path to reach the release directory, got %v", err)
	}

	if _, err := ResolveWithin(link, "..", "releases"); !errors.Is(err, ErrPathEscape) {
		t.Fatalf("expected escape from the symlinked root to be rejected, got %v", err)
	}
}

func TestResolveWithinRequiresBase(t *testing.T) {
	if _, err := ResolveWithin("", "site"); err == nil {
		t.Fatal("expected an error for an empty root")
	}
}
