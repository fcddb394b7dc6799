package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
)

// validateScanID ensures scan identifiers are UUIDs before they reach a
// repository, which stores them inside filenames.
func validateScanID(id string) error {
	switch {
	case id == "":
		return errors.New("scan ID is required")
	case strings.ContainsAny(id, "/\\"):
		return fmt.Errorf("scan ID %q must not contain path separators", id)
	case !snapshot.ValidID(id):
		return fmt.Errorf("scan ID %q is not a valid UUID", id)
	}
	return nil
}

// resolveOutputPath returns the file to write. An existing directory receives
// defaultName inside it.
func resolveOutputPath(fs afero.Fs, output, defaultName string) (string, error) {
	if strings.TrimSpace(output) == "" {
		return "", errors.New("output path is required")
	}
	if strings.ContainsAny(output, "\r\n\x00") {
		return "", fmt.Errorf("output path %q contains invalid characters", output)
	}

	path := filepath.Clean(output)
	if isDir, err := afero.IsDir(fs, path); err == nil && isDir {
		if defaultName == "" {
			return "", fmt.Errorf("output path %s is a directory", path)
		}
		path = filepath.Join(path, defaultName)
	}
	return path, nil
}

// writeOutputFile writes data through a temporary sibling so a failed write
// never leaves a truncated file behind.
func writeOutputFile(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, consts.DefaultFilePerm); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("move output file into place: %w", err)
	}
	return nil
}
