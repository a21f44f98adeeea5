package bot

import (
	"io"
	"sync"
)

const (
	// consoleBufferSize is the number of log lines kept per script.
	// Attaching a console first replays these.
	consoleBufferSize = 64
)

// consoleBuffer is a ring buffer of console lines.
type consoleBuffer struct {
	lines [][]byte
	start int
	count int
}

func (b *consoleBuffer) push(line []byte) {
	if b.lines == nil {
		b.lines = make([][]byte, consoleBufferSize)
	}
	lineCopy := make([]byte, len(line))
	copy(lineCopy, line)

	if b.count < consoleBufferSize {
		b.lines[(b.start+b.count)%consoleBufferSize] = lineCopy
		b.count++
	} else {
		b.lines[b.start] = lineCopy
		b.start = (b.start + 1) % consoleBufferSize
	}
}

func (b *consoleBuffer) getAll() [][]byte {
	if b.count == 0 {
		return nil
	}
	result := make([][]byte, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.lines[(b.start+i)%consoleBufferSize]
	}
	return result
}

// Switchboard connects the `log` output of scripts to attached consoles.
type Switchboard struct {
	mu       sync.RWMutex
	consoles map[string]map[io.Writer]struct{}
	buffers  map[string]*consoleBuffer
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{
		consoles: map[string]map[io.Writer]struct{}{},
		buffers:  map[string]*consoleBuffer{},
	}
}

// Attach makes w receive the console output of script, after replaying the buffered lines.
func (s *Switchboard) Attach(script string, w io.Writer) {
	s.mu.Lock()
	if s.consoles[script] == nil {
		s.consoles[script] = map[io.Writer]struct{}{}
	}
	s.consoles[script][w] = struct{}{}
	var buffered [][]byte
	if buf := s.buffers[script]; buf != nil {
		buffered = buf.getAll()
	}
	s.mu.Unlock()
	for _, line := range buffered {
		if _, err := w.Write(line); err != nil {
			s.Detach(script, w)
			return
		}
	}
}

// Detach returns whether w was attached.
func (s *Switchboard) Detach(script string, w io.Writer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	consoles := s.consoles[script]
	if _, found := consoles[w]; !found {
		return false
	}
	delete(consoles, w)
	if len(consoles) == 0 {
		delete(s.consoles, script)
	}
	return true
}

func (s *Switchboard) IsAttached(script string, w io.Writer) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := s.consoles[script][w]
	return found
}

func (s *Switchboard) Writer(script string) *SwitchboardWriter {
	return &SwitchboardWriter{s: s, script: script}
}

// SwitchboardWriter buffers every write, and copies it to the consoles attached to its script.
// Consoles failing a write are detached.
type SwitchboardWriter struct {
	s      *Switchboard
	script string
}

func (w *SwitchboardWriter) Write(b []byte) (int, error) {
	w.s.mu.Lock()
	if w.s.buffers[w.script] == nil {
		w.s.buffers[w.script] = &consoleBuffer{}
	}
	w.s.buffers[w.script].push(b)
	list := make([]io.Writer, 0, len(w.s.consoles[w.script]))
	for c := range w.s.consoles[w.script] {
		list = append(list, c)
	}
	w.s.mu.Unlock()

	for _, c := range list {
		if _, err := c.Write(b); err != nil {
			w.s.Detach(w.script, c)
		}
	}
	return len(b), nil
}

// Buffered returns the buffered lines of script, oldest first.
func (s *Switchboard) Buffered(script string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if buf := s.buffers[script]; buf != nil {
		return buf.getAll()
	}
	return nil
}
