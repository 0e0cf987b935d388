package logsink

import (
	"bytes"
	"io"
	"os"
)

// Reader performs incremental, complete-line reads against a log file that
// may still be growing. A trailing line without its newline is buffered and
// not surfaced until the newline arrives, so consumers never see a line that
// is still being written.
type Reader struct {
	file    *os.File
	pending []byte
}

func openReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f}, nil
}

// ReadLine returns the next complete line without its trailing newline.
// ok is false when no complete line is currently available; the caller is
// expected to poll again later.
func (r *Reader) ReadLine() (line string, ok bool, err error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line := string(r.pending[:i])
			r.pending = r.pending[i+1:]
			return line, true, nil
		}

		buf := make([]byte, 4096)
		n, err := r.file.Read(buf)
		if n > 0 {
			r.pending = append(r.pending, buf[:n]...)
			continue
		}
		if err == io.EOF || err == nil {
			return "", false, nil
		}
		return "", false, err
	}
}

// Close releases the reader's file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}
