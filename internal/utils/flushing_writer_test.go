package utils_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/reqbatch/internal/utils"
)

type progressTerminal struct {
	frames     []string
	flushes    int
	flushError error
	writeError error
}

func (terminal *progressTerminal) Write(frame []byte) (int, error) {
	if terminal.writeError != nil {
		return 0, terminal.writeError
	}
	terminal.frames = append(terminal.frames, string(frame))
	return len(frame), nil
}

func (terminal *progressTerminal) Flush() error {
	terminal.flushes++
	return terminal.flushError
}

func TestFlushingWriterFlushesEveryFrame(testInstance *testing.T) {
	terminal := &progressTerminal{}
	writer := utils.NewFlushingWriter(terminal)

	for _, frame := range []string{"\r 1/3", "\r 2/3", "\r 3/3\n"} {
		written, writeError := writer.Write([]byte(frame))
		require.NoError(testInstance, writeError)
		require.Equal(testInstance, len(frame), written)
	}

	require.Equal(testInstance, []string{"\r 1/3", "\r 2/3", "\r 3/3\n"}, terminal.frames)
	require.Equal(testInstance, 3, terminal.flushes)
}

func TestFlushingWriterReportsFailures(testInstance *testing.T) {
	flushFailure := errors.New("terminal detached")
	terminal := &progressTerminal{flushError: flushFailure}
	written, writeError := utils.NewFlushingWriter(terminal).Write([]byte("frame"))
	require.ErrorIs(testInstance, writeError, flushFailure)
	require.Equal(testInstance, 5, written)

	writeFailure := errors.New("broken pipe")
	terminal = &progressTerminal{writeError: writeFailure}
	_, writeError = utils.NewFlushingWriter(terminal).Write([]byte("frame"))
	require.ErrorIs(testInstance, writeError, writeFailure)
	require.Zero(testInstance, terminal.flushes)
}

func TestFlushingWriterPlainDestinations(testInstance *testing.T) {
	var buffer bytes.Buffer
	written, writeError := utils.NewFlushingWriter(&buffer).Write([]byte("Created 2/2"))
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, 11, written)
	require.Equal(testInstance, "Created 2/2", buffer.String())

	written, writeError = utils.NewFlushingWriter(nil).Write([]byte("dropped"))
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, 7, written)
}
