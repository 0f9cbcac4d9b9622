package output

import (
	"bytes"

	"github.com/slok/scriptrun/internal/model"
)

// DefaultMaxLineBytes is the size after which a line without a line feed is split.
const DefaultMaxLineBytes = 64 * 1024

// Publisher receives complete lines.
type Publisher interface {
	Publish(stream model.Stream, text string)
}

// LineWriter is an io.Writer that splits the written data into lines and
// publishes them. It's meant to be used by a single writer goroutine.
type LineWriter struct {
	stream  model.Stream
	pub     Publisher
	maxLine int
	buf     []byte
}

// NewLineWriter returns a new line writer for a stream.
func NewLineWriter(stream model.Stream, pub Publisher) *LineWriter {
	return &LineWriter{stream: stream, pub: pub, maxLine: DefaultMaxLineBytes}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buf = append(w.buf, p...)
			for len(w.buf) >= w.maxLine {
				w.emit(w.buf[:w.maxLine], false)
				w.buf = append(w.buf[:0], w.buf[w.maxLine:]...)
			}
			break
		}

		w.buf = append(w.buf, p[:i]...)
		w.emit(w.buf, true)
		w.buf = w.buf[:0]
		p = p[i+1:]
	}
	return n, nil
}

// Flush publishes the pending partial line, if any.
func (w *LineWriter) Flush() {
	if len(w.buf) == 0 {
		return
	}
	w.emit(w.buf, false)
	w.buf = w.buf[:0]
}

// emit publishes a line, the CR of a CRLF is only removed when the line ended with a LF.
func (w *LineWriter) emit(line []byte, lf bool) {
	if lf {
		line = bytes.TrimSuffix(line, []byte("\r"))
	}
	w.pub.Publish(w.stream, string(line))
}
