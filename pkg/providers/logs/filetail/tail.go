// Package filetail reads bounded tails of the gateway's daily log files.
package filetail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// chunkSize is how much is read per backwards step.
var chunkSize int64 = 64 * 1024

// maxTailBytes caps the bytes held for one tail read, whatever the line count.
const maxTailBytes = 32 * 1024 * 1024

// DayLogName returns the gateway log file name for the calendar day of t.
func DayLogName(t time.Time) string {
	return "openclaw-" + t.Format("2006-01-02") + ".log"
}

// DayLogPath returns the path of the log file for the day of t under dir.
func DayLogPath(dir string, t time.Time) string {
	return filepath.Join(dir, DayLogName(t))
}

// ReadLastLines returns at most the last n physical lines of the file at
// path, oldest first. The file is read backwards from EOF so memory stays
// proportional to the lines returned. A missing file yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func ReadLastLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	var (
		buf      []byte
		pos      = size
		newlines = 0
		trailing = false
	)
	for pos > 0 {
		step := min(chunkSize, pos)
		pos -= step

		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(buf) == 0 && len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
			trailing = true
		}
		newlines += bytes.Count(chunk, []byte{'\n'})
		buf = append(chunk, buf...)

		complete := newlines
		if trailing {
			complete--
		}
		if complete >= n || len(buf) >= maxTailBytes {
			break
		}
	}

	if trailing {
		buf = buf[:len(buf)-1]
	}
	if len(buf) == 0 {
		return nil, nil
	}

	parts := bytes.Split(buf, []byte{'\n'})
	if pos > 0 {
		// The first segment started mid-line.
		parts = parts[1:]
	}
	if len(parts) > n {
		parts = parts[len(parts)-n:]
	}

	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(bytes.TrimSuffix(p, []byte{'\r'}))
	}
	return lines, nil
}
