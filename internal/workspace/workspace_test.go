package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/models"
)

func newTestWorkspace(t *testing.T, opts Options) (*Workspace, string) {
	t.Helper()
	root := t.TempDir()
	ws, err := New(root, filesystem.NewDefaultFileSystemAdapter(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ws, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew_Errors(t *testing.T) {
	fs := filesystem.NewDefaultFileSystemAdapter()
	file := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		root string
		fs   filesystem.FileSystemAdapter
	}{
		{"nil adapter", t.TempDir(), nil},
		{"empty root", "  ", fs},
		{"missing root", filepath.Join(t.TempDir(), "missing"), fs},
		{"file root", file, fs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.root, tt.fs, Options{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	ws, _ := newTestWorkspace(t, Options{})
	if ws.MaxFileSize() != 10*1024*1024 {
		t.Errorf("MaxFileSize = %d", ws.MaxFileSize())
	}
	if !ws.IsExcludedDir("node_modules") || ws.IsExcludedDir("src") {
		t.Error("default exclusions not applied")
	}

	custom, _ := newTestWorkspace(t, Options{ExcludedDirs: []string{"vendor", " "}})
	if custom.IsExcludedDir("node_modules") || !custom.IsExcludedDir("vendor") || custom.IsExcludedDir("") {
		t.Error("custom exclusions not applied")
	}
}

func TestResolve(t *testing.T) {
	ws, root := newTestWorkspace(t, Options{})
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		want     string
		wantKind models.ErrorKind
	}{
		{name: "relative", path: "src/main.go", want: filepath.Join(ws.Root(), "src", "main.go")},
		{name: "leading slash stays inside", path: "/etc/passwd", want: filepath.Join(ws.Root(), "etc", "passwd")},
		{name: "dot segments inside", path: "a/../b.txt", want: filepath.Join(ws.Root(), "b.txt")},
		{name: "empty", path: " ", wantKind: errors.KindInvalidPath},
		{name: "root itself", path: ".", wantKind: errors.KindInvalidPath},
		{name: "traversal", path: "../secret", wantKind: errors.KindInvalidPath},
		{name: "symlink escape", path: "escape/new.txt", wantKind: errors.KindInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errDetail := ws.Resolve(tt.path)
			if tt.wantKind != "" {
				if errDetail == nil || errDetail.Kind != tt.wantKind {
					t.Fatalf("Resolve(%q) error = %+v, want kind %s", tt.path, errDetail, tt.wantKind)
				}
				return
			}
			if errDetail != nil {
				t.Fatalf("Resolve(%q) error: %+v", tt.path, errDetail)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
			if rel := ws.Rel(got); strings.HasPrefix(rel, "..") {
				t.Errorf("Rel(%q) = %q", got, rel)
			}
		})
	}
}

func TestSnapshot(t *testing.T) {
	ws, root := newTestWorkspace(t, Options{})
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, "src/util/strings.go", "package util")
	writeFile(t, root, ".git/config", "x")
	writeFile(t, root, "node_modules/pkg/index.js", "x")
	writeFile(t, root, ".env", "KEY=1")

	snap, err := ws.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Root != ws.Root() {
		t.Errorf("Root = %q", snap.Root)
	}
	if got := strings.Join(snap.Directories, ","); got != "src,src/util" {
		t.Errorf("Directories = %s", got)
	}
	if got := strings.Join(snap.Files, ","); got != "b.txt,src/main.go,src/util/strings.go" {
		t.Errorf("Files = %s", got)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	ws, _ := newTestWorkspace(t, Options{})
	snap, err := ws.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Files == nil || snap.Directories == nil || len(snap.Files)+len(snap.Directories) != 0 {
		t.Errorf("snapshot = %+v, want empty non-nil lists", snap)
	}
}

func TestContext(t *testing.T) {
	ws, root := newTestWorkspace(t, Options{})
	writeFile(t, root, "lib/a.go", "package lib")

	sel := &models.Selection{File: "lib/a.go", StartLine: 1, EndLine: 1}
	wctx, err := ws.Context(nil, "lib/a.go", sel)
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if wctx.WorkspacePath != ws.Root() || wctx.CurrentFile != "lib/a.go" || wctx.Selection != sel {
		t.Errorf("context = %+v", wctx)
	}
	if wctx.OpenFiles == nil || len(wctx.OpenFiles) != 0 {
		t.Errorf("OpenFiles = %#v, want empty list", wctx.OpenFiles)
	}
	if len(wctx.Files) != 1 || len(wctx.Directories) != 1 {
		t.Errorf("listing = %v %v", wctx.Files, wctx.Directories)
	}
}

func TestReadFile(t *testing.T) {
	ws, root := newTestWorkspace(t, Options{MaxFileSizeBytes: 64})
	writeFile(t, root, "lines.txt", "one\ntwo\nthree")
	writeFile(t, root, "big.txt", strings.Repeat("x", 65))
	writeFile(t, root, "bin.dat", "\xff\xfe")
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		req       models.ReadFileRequest
		want      string
		wantRange *models.RangeRequested
		wantCode  int
		wantKind  models.ErrorKind
	}{
		{name: "whole file", req: models.ReadFileRequest{Path: "lines.txt"}, want: "one\ntwo\nthree"},
		{name: "range", req: models.ReadFileRequest{Path: "lines.txt", StartLine: 2, EndLine: 3}, want: "two\nthree", wantRange: &models.RangeRequested{StartLine: 2, EndLine: 3}},
		{name: "open end clamps", req: models.ReadFileRequest{Path: "lines.txt", StartLine: 3, EndLine: 99}, want: "three", wantRange: &models.RangeRequested{StartLine: 3, EndLine: 3}},
		{name: "start only from first", req: models.ReadFileRequest{Path: "lines.txt", EndLine: 1}, want: "one", wantRange: &models.RangeRequested{StartLine: 1, EndLine: 1}},
		{name: "start beyond end", req: models.ReadFileRequest{Path: "lines.txt", StartLine: 4}, wantCode: errors.CodeInvalidParams},
		{name: "inverted", req: models.ReadFileRequest{Path: "lines.txt", StartLine: 3, EndLine: 2}, wantCode: errors.CodeInvalidParams},
		{name: "negative", req: models.ReadFileRequest{Path: "lines.txt", StartLine: -1}, wantCode: errors.CodeInvalidParams},
		{name: "missing", req: models.ReadFileRequest{Path: "nope.txt"}, wantCode: errors.CodeFileSystemError, wantKind: errors.KindFileNotFound},
		{name: "directory", req: models.ReadFileRequest{Path: "dir"}, wantCode: errors.CodeInvalidParams},
		{name: "too large", req: models.ReadFileRequest{Path: "big.txt"}, wantCode: errors.CodeFileTooLarge},
		{name: "not utf8", req: models.ReadFileRequest{Path: "bin.dat"}, wantCode: errors.CodeFileSystemError},
		{name: "traversal", req: models.ReadFileRequest{Path: "../x"}, wantKind: errors.KindInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, errDetail := ws.ReadFile(tt.req)
			if tt.wantCode != 0 || tt.wantKind != "" {
				if errDetail == nil {
					t.Fatalf("expected error, got %+v", resp)
				}
				if tt.wantCode != 0 && errDetail.Code != tt.wantCode {
					t.Errorf("code = %d, want %d", errDetail.Code, tt.wantCode)
				}
				if tt.wantKind != "" && errDetail.Kind != tt.wantKind {
					t.Errorf("kind = %q, want %q", errDetail.Kind, tt.wantKind)
				}
				return
			}
			if errDetail != nil {
				t.Fatalf("ReadFile error: %+v", errDetail)
			}
			if resp.Content != tt.want || resp.TotalLines != 3 {
				t.Errorf("resp = %+v", resp)
			}
			if (resp.RangeRequested == nil) != (tt.wantRange == nil) ||
				(tt.wantRange != nil && *resp.RangeRequested != *tt.wantRange) {
				t.Errorf("RangeRequested = %+v, want %+v", resp.RangeRequested, tt.wantRange)
			}
		})
	}
}
