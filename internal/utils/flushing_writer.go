package utils

import "io"

type flusher interface {
	Flush() error
}

type flushingWriter struct {
	writer  io.Writer
	flusher flusher
}

// NewFlushingWriter returns a writer that flushes the destination after every
// write when the destination supports flushing.
func NewFlushingWriter(writer io.Writer) io.Writer {
	if writer == nil {
		writer = io.Discard
	}
	wrapped := flushingWriter{writer: writer}
	if destinationFlusher, ok := writer.(flusher); ok {
		wrapped.flusher = destinationFlusher
	}
	return wrapped
}

func (writer flushingWriter) Write(data []byte) (int, error) {
	bytesWritten, writeError := writer.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	if writer.flusher != nil {
		if flushError := writer.flusher.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}
	return bytesWritten, nil
}
