package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// QueueFile is the plain-text watch list. Each line whose trimmed
// content starts with "http" is a desired thread URL; a "-" prefix
// disables the line. Everything else (comments, blanks, disabled
// lines) is preserved verbatim on rewrite.
type QueueFile struct {
	path string
}

// NewQueueFile wraps the watch list at path. The file does not have to
// exist yet.
func NewQueueFile(path string) *QueueFile {
	return &QueueFile{path: path}
}

// Path returns the underlying file path.
func (q *QueueFile) Path() string { return q.path }

// Active returns the currently desired thread URLs in file order.
func (q *QueueFile) Active() ([]string, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return nil, fmt.Errorf("reading watch list: %w", err)
	}

	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "http") {
			urls = append(urls, trimmed)
		}
	}
	return urls, nil
}

// Disable comments out the line matching url by prefixing it with "-".
// The rest of the file is kept byte for byte, and the rewrite goes
// through a temp file plus rename. Disabling a URL that is absent or
// already disabled changes nothing.
func (q *QueueFile) Disable(url string) error {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return fmt.Errorf("reading watch list: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		if strings.TrimSpace(line) == url {
			lines[i] = "-" + line
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return q.rewrite(strings.Join(lines, "\n"))
}

// rewrite replaces the watch list atomically so a crash mid-write
// never leaves a truncated file behind.
func (q *QueueFile) rewrite(content string) error {
	dir := filepath.Dir(q.path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing watch list: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, q.path); err != nil {
		return fmt.Errorf("replacing watch list: %w", err)
	}

	success = true
	return nil
}
