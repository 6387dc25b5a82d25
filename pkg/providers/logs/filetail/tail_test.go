package filetail

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDayLogPath(t *testing.T) {
	day := time.Date(2026, 2, 10, 23, 59, 0, 0, time.Local)
	got := DayLogPath("/tmp/openclaw", day)
	if got != "/tmp/openclaw/openclaw-2026-02-10.log" {
		t.Errorf("DayLogPath = %q", got)
	}
}

func TestReadLastLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		n       int
		want    []string
	}{
		{"fewer than window", "a\nb\n", 5, []string{"a", "b"}},
		{"exact window", "a\nb\nc\n", 3, []string{"a", "b", "c"}},
		{"tail of window", "a\nb\nc\nd\n", 2, []string{"c", "d"}},
		{"no trailing newline", "a\nb\nc", 2, []string{"b", "c"}},
		{"crlf", "a\r\nb\r\n", 2, []string{"a", "b"}},
		{"blank lines kept", "a\n\nb\n", 3, []string{"a", "", "b"}},
		{"empty file", "", 3, nil},
		{"zero window", "a\n", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content)
			got, err := ReadLastLines(path, tt.n)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLastLinesAcrossChunks(t *testing.T) {
	old := chunkSize
	chunkSize = 7
	defer func() { chunkSize = old }()

	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "line-%02d\n", i)
	}
	path := writeFile(t, b.String())

	got, err := ReadLastLines(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"line-47", "line-48", "line-49"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}

	all, err := ReadLastLines(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 50 || all[0] != "line-00" {
		t.Errorf("expected all 50 lines from line-00, got %d starting %q", len(all), all[0])
	}
}

func TestReadLastLinesMissingFile(t *testing.T) {
	_, err := ReadLastLines(filepath.Join(t.TempDir(), "nope.log"), 10)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
