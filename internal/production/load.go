package production

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for files whose extension names no loader.
var ErrUnsupportedFormat = errors.New("production: unsupported file format")

// Format names a production interchange format.
type Format string

const (
	FormatYAML   Format = "yaml"
	FormatMangle Format = "mangle"
)

// DetectFormat picks the loader for a path by extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".mg", ".mangle":
		return FormatMangle, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// LoadFile reads every production in path.
func LoadFile(path string) ([]Production, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open productions: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatYAML:
		return LoadYAML(f, path)
	default:
		return LoadMangle(f, path)
	}
}
