package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes rec as indented JSON to path. The file is written to a temporary
// name in the same directory and renamed into place, so path never holds a partial
// record.
func WriteFile(path string, rec Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".mboxfwd-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	enc := json.NewEncoder(tempFile)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	// Close the temp file to flush
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempFile.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
