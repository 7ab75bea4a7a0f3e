package console

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathChooser returns the file an export is written to. An empty path with
// a nil error means the user cancelled.
type PathChooser func() (string, error)

// FixedPath returns a PathChooser that always answers path
func FixedPath(path string) PathChooser {
	return func() (string, error) {
		return path, nil
	}
}

// ExportLines writes every line followed by CRLF to path as UTF-8. The file
// is written to a temporary sibling first and renamed into place, so path
// is either fully written or left untouched.
func ExportLines(path string, lines []string) error {
	if path == "" {
		return fmt.Errorf("export path cannot be empty")
	}

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\r\n")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	tempPath := tmp.Name()

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to set export file mode: %w", err)
	}

	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write export file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close export file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename export file: %w", err)
	}

	return nil
}
