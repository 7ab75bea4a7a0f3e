package console

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExportLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.txt")

	if err := ExportLines(path, []string{"T -> hello", "wörld", ""}); err != nil {
		t.Fatalf("ExportLines() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}

	want := "T -> hello\r\nwörld\r\n\r\n"
	if string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the export", len(entries))
	}
}

func TestExportLines_Errors(t *testing.T) {
	if err := ExportLines("", []string{"a"}); err == nil {
		t.Error("ExportLines() with empty path should fail")
	}

	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "out.txt")
	if err := ExportLines(missing, []string{"a"}); err == nil {
		t.Error("ExportLines() into a missing directory should fail")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Errorf("failed export left a file behind: %v", err)
	}
}

func TestFixedPath(t *testing.T) {
	path, err := FixedPath("/tmp/x.txt")()
	if err != nil || path != "/tmp/x.txt" {
		t.Errorf("FixedPath()() = %q, %v", path, err)
	}
}
