package supervisor

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{buf: make([]byte, 0, max), max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// lineLogger logs complete lines of child output and mirrors raw bytes
// into the shared tail buffer.
type lineLogger struct {
	log    zerolog.Logger
	level  zerolog.Level
	stream string
	tail   *tailBuffer
	buf    []byte
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	_, _ = lw.tail.Write(p)
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(lw.buf[:idx], "\r")
		if len(line) > 0 {
			lw.log.WithLevel(lw.level).Str("stream", lw.stream).Msg(string(line))
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// flush logs any trailing partial line.
func (lw *lineLogger) flush() {
	if len(lw.buf) > 0 {
		lw.log.WithLevel(lw.level).Str("stream", lw.stream).Msg(string(lw.buf))
		lw.buf = nil
	}
}
