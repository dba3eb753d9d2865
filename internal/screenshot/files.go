package screenshot

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideRoot is returned when a requested path would resolve outside
// the screenshot root.
var ErrOutsideRoot = fmt.Errorf("path escapes screenshot root")

// Files stores persisted screenshots under one subdirectory per session,
// with millisecond-timestamp filenames. All path resolution is confined
// to the configured root.
type Files struct {
	root string
}

// NewFiles creates the store rooted at dir, creating it if needed.
func NewFiles(dir string) (*Files, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve screenshot root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot root: %w", err)
	}
	return &Files{root: abs}, nil
}

// Save decodes a base64 data URI and writes it under the session's
// directory, returning the relative path recorded on the action row.
// Filenames are unique per session even under rapid sequential capture.
func (f *Files) Save(sessionID, dataURI string) (string, error) {
	if sessionID == "" || !strings.HasPrefix(dataURI, "data:image") {
		return "", fmt.Errorf("invalid screenshot payload")
	}

	idx := strings.Index(dataURI, ";base64,")
	if idx < 0 {
		return "", fmt.Errorf("invalid screenshot payload")
	}
	raw, err := base64.StdEncoding.DecodeString(dataURI[idx+len(";base64,"):])
	if err != nil {
		return "", fmt.Errorf("failed to decode screenshot: %w", err)
	}

	dir, err := f.resolve(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	ts := time.Now().UnixMilli()
	filename := fmt.Sprintf("%d.png", ts)
	for {
		if _, err := os.Stat(filepath.Join(dir, filename)); os.IsNotExist(err) {
			break
		}
		ts++
		filename = fmt.Sprintf("%d.png", ts)
	}

	if err := os.WriteFile(filepath.Join(dir, filename), raw, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return sessionID + "/" + filename, nil
}

// Open returns the absolute path of a stored screenshot after verifying
// it cannot escape the root. Traversal attempts yield ErrOutsideRoot.
func (f *Files) Open(parts ...string) (string, error) {
	path, err := f.resolve(parts...)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// DeleteSession removes exactly one session's screenshot subtree.
func (f *Files) DeleteSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	dir, err := f.resolve(sessionID)
	if err != nil {
		return err
	}
	// Never allow the root itself to be removed.
	if dir == f.root {
		return ErrOutsideRoot
	}
	return os.RemoveAll(dir)
}

func (f *Files) resolve(parts ...string) (string, error) {
	resolved := filepath.Join(append([]string{f.root}, parts...)...)
	resolved = filepath.Clean(resolved)
	if resolved != f.root && !strings.HasPrefix(resolved, f.root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return resolved, nil
}
