package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/temporary", filepath.Join(home, "temporary")},
		{"~alice/x", "~alice/x"},
		{"/abs/path", "/abs/path"},
		{"rel", "rel"},
	}
	for _, tt := range tests {
		got, err := ExpandHome(tt.in)
		if err != nil {
			t.Fatalf("ExpandHome(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveAbsolutePathKeepsMissingTail(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(base, "not", "yet", "created")

	got, err := ResolveAbsolutePath(target)
	if err != nil {
		t.Fatalf("ResolveAbsolutePath() error = %v", err)
	}
	if got != target {
		t.Errorf("ResolveAbsolutePath() = %q, want %q", got, target)
	}
}

func TestResolveAbsolutePathFollowsSymlink(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	real := filepath.Join(base, "real")
	if err := os.Mkdir(real, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := ResolveAbsolutePath(filepath.Join(link, "downloads"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(real, "downloads"); got != want {
		t.Errorf("ResolveAbsolutePath() = %q, want %q", got, want)
	}
}

func TestResolveAbsolutePathEmptyIsWorkingDir(t *testing.T) {
	wd, _ := os.Getwd()
	got, err := ResolveAbsolutePath("")
	if err != nil || got != wd {
		t.Errorf("ResolveAbsolutePath(\"\") = %q, %v, want %q", got, err, wd)
	}
}
