package importer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultMaxFileSize is the largest CSV an import reads into memory (256 MiB).
const DefaultMaxFileSize int64 = 256 * 1024 * 1024

// LookupEncoding resolves a WHATWG encoding label such as "utf-8",
// "windows-1252", or "utf-16le". UTF-8 decoding strips a leading byte order
// mark and replaces invalid sequences with U+FFFD.
func LookupEncoding(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return unicode.UTF8BOM, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return unicode.UTF8BOM, nil
	}
	return enc, nil
}

// statSource resolves path to an absolute path and checks that it names a
// regular file no larger than limit.
func statSource(path string, limit int64) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, &Error{Kind: ErrFileNotFound, Path: path, Err: err}
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return abs, &Error{Kind: ErrFileNotFound, Path: abs}
	}
	if err != nil {
		return abs, &Error{Kind: ErrReadFailure, Path: abs, Err: err}
	}
	if !info.Mode().IsRegular() {
		return abs, &Error{Kind: ErrNotAFile, Path: abs}
	}
	if limit > 0 && info.Size() > limit {
		return abs, &Error{Kind: ErrFileTooLarge, Path: abs, Size: info.Size(), Limit: limit}
	}
	return abs, nil
}

// readSource reads the whole file and decodes it to UTF-8.
func readSource(abs string, enc encoding.Encoding) (string, error) {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return "", &Error{Kind: ErrReadFailure, Path: abs, Err: err}
	}
	if enc == nil {
		enc = unicode.UTF8BOM
	}
	text, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", &Error{Kind: ErrReadFailure, Path: abs, Err: err}
	}
	return string(text), nil
}
