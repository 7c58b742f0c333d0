package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func TestReadLogLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".agent-log")
	writeLog(t, path, "one\r\ntwo\nthree\n")

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"all", 0, []string{"one", "two", "three"}},
		{"tail", 2, []string{"two", "three"}},
		{"more than available", 10, []string{"one", "two", "three"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, offset, err := readLogLines(path, tt.n)
			if err != nil {
				t.Fatalf("readLogLines() error = %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("readLogLines() = %q, want %q", got, tt.want)
			}
			if offset != int64(len("one\r\ntwo\nthree\n")) {
				t.Errorf("readLogLines() offset = %d, want file size", offset)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		got, offset, err := readLogLines(filepath.Join(t.TempDir(), "nope"), 0)
		if err != nil || len(got) != 0 || offset != 0 {
			t.Errorf("readLogLines(missing) = %q, %d, %v", got, offset, err)
		}
	})
}

func TestTailThenFollowLosesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".agent-log")
	writeLog(t, path, "one\ntwo\nthree\n")

	lines, offset, err := readLogLines(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(lines, ",") != "two,three" {
		t.Fatalf("tail = %q", lines)
	}

	// Written after the tail was read but before following starts.
	appendLog(t, path, "four\n")

	var buf bytes.Buffer
	f := &logFollower{path: path, offset: offset}
	if err := f.drain(&buf, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "four\n" {
		t.Errorf("follower output = %q, want %q", buf.String(), "four\n")
	}
}

func TestWriteLogLineStripsANSI(t *testing.T) {
	var buf bytes.Buffer
	writeLogLine(&buf, "\x1b[31mred\x1b[0m text", true)
	if buf.String() != "red text\n" {
		t.Errorf("writeLogLine(strip) = %q", buf.String())
	}

	buf.Reset()
	writeLogLine(&buf, "\x1b[31mred\x1b[0m", false)
	if !strings.Contains(buf.String(), "\x1b[31m") {
		t.Errorf("writeLogLine(no strip) = %q, want escapes kept", buf.String())
	}
}

func TestLogFollowerDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".agent-log")
	writeLog(t, path, "old line\n")

	f := &logFollower{path: path, offset: int64(len("old line\n"))}
	var buf bytes.Buffer

	appendLog(t, path, "first\nsecond par")
	if err := f.drain(&buf, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "first\n" {
		t.Errorf("after first drain = %q, want only complete lines", buf.String())
	}

	appendLog(t, path, "tial\n")
	if err := f.drain(&buf, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "first\nsecond partial\n" {
		t.Errorf("after second drain = %q", buf.String())
	}

	t.Run("truncated file is reread", func(t *testing.T) {
		buf.Reset()
		writeLog(t, path, "new\n")
		if err := f.drain(&buf, false); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "new\n" {
			t.Errorf("after truncate = %q, want %q", buf.String(), "new\n")
		}
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		missing := &logFollower{path: filepath.Join(t.TempDir(), "gone")}
		if err := missing.drain(&buf, false); err != nil {
			t.Errorf("drain(missing) error = %v", err)
		}
	})
}

// syncBuffer guards a bytes.Buffer shared with the follow goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".agent-log")
	writeLog(t, path, "already shown\n")

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- followLog(ctx, path, int64(len("already shown\n")), out, false)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "agent: working") {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("followed output = %q, want appended line", out.String())
		}
		appendLog(t, path, "agent: working\n")
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("followLog() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("followLog did not return after cancel")
	}
	if strings.Contains(out.String(), "already shown") {
		t.Errorf("followed output repeated old content: %q", out.String())
	}
}
