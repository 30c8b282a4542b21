package teereader

import (
	"errors"
	"io"
)

// ErrIncomplete is reported to onClose when the reader got closed before
// the source was fully consumed.
var ErrIncomplete = errors.New("reader closed before reaching the end of the source")

type TeeReader struct {
	src          io.Reader
	dest         io.Writer
	onClose      func(totalRead int64, readErr, writeErr error) error
	lastReadErr  error
	lastWriteErr error
	reachedEOF   bool
	totalRead    int64
}

func New(
	src io.Reader,
	dest io.Writer,
	onClose func(totalRead int64, readErr, writeErr error) error,
) *TeeReader {
	return &TeeReader{src: src, dest: dest, onClose: onClose}
}

func (t *TeeReader) Read(p []byte) (int, error) {
	if t.lastWriteErr != nil || t.lastReadErr != nil {
		n, err := t.src.Read(p)
		t.totalRead += int64(n)
		if err == io.EOF { //nolint:errorlint
			t.reachedEOF = true
		}
		return n, err
	}

	n, readErr := t.src.Read(p)
	if readErr == io.EOF { //nolint:errorlint
		t.reachedEOF = true
	} else if readErr != nil {
		t.lastReadErr = readErr
	}

	if n > 0 {
		if _, writeErr := t.dest.Write(p[:n]); writeErr != nil {
			t.lastWriteErr = writeErr
		}
	}

	t.totalRead += int64(n)
	return n, readErr
}

func (t *TeeReader) Close() error {
	readErr := t.lastReadErr
	if readErr == nil && !t.reachedEOF {
		readErr = ErrIncomplete
	}
	return t.onClose(t.totalRead, readErr, t.lastWriteErr)
}
