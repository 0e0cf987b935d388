package logsink

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return st
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestAppendFormat(t *testing.T) {
	st := newTestStore(t)
	sink, err := st.Open("abc", false)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if err := sink.Info("hello %s", "world"); err != nil {
		t.Fatalf("Info() error: %v", err)
	}

	lines := readLines(t, sink.Path())
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if !strings.HasSuffix(lines[0], " - INFO - hello world") {
		t.Errorf("line = %q, want timestamp + %q suffix", lines[0], " - INFO - hello world")
	}
	// Prefix is "YYYY-MM-DD HH:MM:SS.mmm - ".
	parts := strings.SplitN(lines[0], " - ", 3)
	if len(parts) != 3 {
		t.Fatalf("line %q does not have timestamp - level - message shape", lines[0])
	}
	if len(parts[0]) != len("2006-01-02 15:04:05.000") {
		t.Errorf("timestamp %q has unexpected length", parts[0])
	}
}

func TestAppendLevels(t *testing.T) {
	st := newTestStore(t)
	sink, _ := st.Open("levels", false)

	sink.Debug("d")
	sink.Info("i")
	sink.Warning("w")
	sink.Error("e")
	sink.Critical("c")

	lines := readLines(t, sink.Path())
	want := []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i, lvl := range want {
		if !strings.Contains(lines[i], " - "+lvl+" - ") {
			t.Errorf("line %d = %q, want level %s", i, lines[i], lvl)
		}
	}
}

func TestTruncate(t *testing.T) {
	st := newTestStore(t)
	sink, _ := st.Open("trunc", false)

	sink.Info("one")
	sink.Info("two")
	if err := sink.Truncate(); err != nil {
		t.Fatalf("Truncate() error: %v", err)
	}

	if lines := readLines(t, sink.Path()); len(lines) != 0 {
		t.Errorf("got %d lines after truncate, want 0", len(lines))
	}

	// The sink stays usable after truncation.
	sink.Info("three")
	lines := readLines(t, sink.Path())
	if len(lines) != 1 || !strings.Contains(lines[0], "three") {
		t.Errorf("lines after post-truncate append = %v", lines)
	}
}

func TestReaderTail(t *testing.T) {
	st := newTestStore(t)
	sink, _ := st.Open("tail", false)
	sink.Info("first")

	r, err := sink.OpenReader()
	if err != nil {
		t.Fatalf("OpenReader() error: %v", err)
	}
	defer r.Close()

	line, ok, err := r.ReadLine()
	if err != nil || !ok {
		t.Fatalf("ReadLine() = %q, %v, %v; want first line", line, ok, err)
	}
	if !strings.Contains(line, "first") {
		t.Errorf("line = %q, want to contain %q", line, "first")
	}

	// Drained: no complete line available.
	if _, ok, _ := r.ReadLine(); ok {
		t.Error("ReadLine() after drain returned ok=true")
	}

	// New writes become visible to the same reader.
	sink.Info("second")
	line, ok, _ = r.ReadLine()
	if !ok || !strings.Contains(line, "second") {
		t.Errorf("ReadLine() after append = %q, %v; want second line", line, ok)
	}
}

func TestReaderPartialLine(t *testing.T) {
	st := newTestStore(t)
	sink, _ := st.Open("partial", false)

	r, err := sink.OpenReader()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	f, err := os.OpenFile(sink.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// A line still being written must not be surfaced.
	if _, err := f.WriteString("incomplete"); err != nil {
		t.Fatal(err)
	}
	if line, ok, _ := r.ReadLine(); ok {
		t.Errorf("ReadLine() surfaced partial line %q", line)
	}

	if _, err := f.WriteString(" now done\n"); err != nil {
		t.Fatal(err)
	}
	line, ok, _ := r.ReadLine()
	if !ok || line != "incomplete now done" {
		t.Errorf("ReadLine() = %q, %v; want complete joined line", line, ok)
	}
}

func TestStoreRetrieveOrClear(t *testing.T) {
	st := newTestStore(t)

	a, err := st.Open("same", false)
	if err != nil {
		t.Fatal(err)
	}
	a.Info("kept")

	// Re-opening the same identifier returns the same instance.
	b, err := st.Open("same", false)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Open() created a duplicate sink for the same session")
	}
	if lines := readLines(t, a.Path()); len(lines) != 1 {
		t.Errorf("got %d lines, want 1", len(lines))
	}

	// Re-opening with clearExisting truncates, never duplicates.
	c, err := st.Open("same", true)
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Error("Open(clear) created a duplicate sink")
	}
	if lines := readLines(t, a.Path()); len(lines) != 0 {
		t.Errorf("got %d lines after clear, want 0", len(lines))
	}
}

func TestStoreRemove(t *testing.T) {
	st := newTestStore(t)
	sink, _ := st.Open("gone", false)
	sink.Info("x")

	st.Remove("gone")

	if _, err := os.Stat(sink.Path()); !os.IsNotExist(err) {
		t.Errorf("log file still exists after Remove: %v", err)
	}
	if _, ok := st.Get("gone"); ok {
		t.Error("Get() found sink after Remove")
	}
	// Appends after removal fail rather than resurrecting the file.
	if err := sink.Info("late write"); err == nil {
		t.Error("Append on removed sink should fail")
	}
	// Removing again is a no-op.
	st.Remove("gone")
}

func TestStoreRemoveAll(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 3; i++ {
		sink, _ := st.Open(fmt.Sprintf("s%d", i), false)
		sink.Info("line")
	}

	if deleted := st.RemoveAll(); deleted != 3 {
		t.Errorf("RemoveAll() = %d, want 3", deleted)
	}
	if deleted := st.RemoveAll(); deleted != 0 {
		t.Errorf("second RemoveAll() = %d, want 0", deleted)
	}
}

func TestConcurrentAppends(t *testing.T) {
	st := newTestStore(t)
	sink, _ := st.Open("concurrent", false)

	const writers = 10
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				sink.Info("writer %d line %d", w, i)
			}
		}(w)
	}
	wg.Wait()

	lines := readLines(t, sink.Path())
	if len(lines) != writers*perWriter {
		t.Fatalf("got %d lines, want %d", len(lines), writers*perWriter)
	}
	// Every line must be whole: appends never interleave mid-line.
	for _, line := range lines {
		if !strings.Contains(line, " - INFO - writer ") {
			t.Errorf("malformed line: %q", line)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"INFO", LevelInfo},
		{"info", LevelInfo},
		{"WARNING", LevelWarning},
		{"warn", LevelWarning},
		{"ERROR", LevelError},
		{"critical", LevelCritical},
		{"debug", LevelDebug},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
