package teereader_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/offcache/internal/teereader"
)

var ErrMaxSizedReached = errors.New("max sized reached")

type MaxSizeWriter struct{}

func (m MaxSizeWriter) Write(p []byte) (n int, err error) {
	return 0, ErrMaxSizedReached
}

func TestReadCopiesCorrectly(t *testing.T) {
	t.Parallel()

	data := "hello world!"

	src := bytes.NewBufferString(data)
	writer := bytes.NewBufferString("")

	reader := teereader.New(src, writer, func(total int64, readErr, writeErr error) error {
		assert.Equal(t, int64(len(data)), total)
		assert.NoError(t, readErr)
		assert.NoError(t, writeErr)

		return nil
	})

	output, err := io.ReadAll(reader)
	require.NoError(t, err)

	assert.Equal(t, data, string(output))
	assert.Equal(t, data, writer.String())

	require.NoError(t, reader.Close())
}

func TestReadReportsErrors(t *testing.T) {
	t.Parallel()

	testErr := errors.New("Test error")
	src := iotest.ErrReader(testErr)
	writer := bytes.NewBufferString("")

	reader := teereader.New(src, writer, func(total int64, readErr, writeErr error) error {
		assert.NoError(t, writeErr)
		assert.ErrorIs(t, readErr, testErr)

		return nil
	})

	output, err := io.ReadAll(reader)
	require.ErrorIs(t, err, testErr)
	require.Equal(t, []byte{}, output)

	require.NoError(t, reader.Close())
}

func TestReaderHandlesPartialReads(t *testing.T) {
	t.Parallel()

	data := "hello world!"

	src := iotest.HalfReader(bytes.NewBufferString(data))
	writer := bytes.NewBufferString("")

	reader := teereader.New(src, writer, func(total int64, readErr, writeErr error) error {
		assert.NoError(t, readErr)
		assert.NoError(t, writeErr)

		return nil
	})

	output, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, data, string(output))
	assert.Equal(t, data, writer.String())

	require.NoError(t, reader.Close())
}

func TestReadsAllEvenOnWriteError(t *testing.T) {
	t.Parallel()

	data := "hello world!"

	src := bytes.NewBufferString(data)
	writer := MaxSizeWriter{}

	reader := teereader.New(src, writer, func(total int64, readErr, writeErr error) error {
		assert.NoError(t, readErr)
		assert.ErrorIs(t, writeErr, ErrMaxSizedReached)

		return nil
	})

	output, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, data, string(output))

	require.NoError(t, reader.Close())
}

func TestReportsIncompleteReads(t *testing.T) {
	t.Parallel()

	src := bytes.NewBufferString("hello world!")
	writer := bytes.NewBufferString("")

	reader := teereader.New(src, writer, func(total int64, readErr, writeErr error) error {
		assert.Equal(t, int64(5), total)
		assert.ErrorIs(t, readErr, teereader.ErrIncomplete)
		assert.NoError(t, writeErr)

		return nil
	})

	buf := make([]byte, 5)
	_, err := io.ReadFull(reader, buf)
	require.NoError(t, err)

	require.NoError(t, reader.Close())
	assert.Equal(t, "hello", writer.String())
}
