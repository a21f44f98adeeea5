package chat

import (
	"fmt"
	"io"
	"sync"
)

type errs []error

func (e errs) Error() string {
	return fmt.Sprintf("%+v", []error(e))
}

// Fanout writes to every attached writer, dropping writers that fail.
type Fanout struct {
	mutex   sync.RWMutex
	writers map[io.Writer]string
}

func NewFanout() *Fanout {
	return &Fanout{
		writers: map[io.Writer]string{},
	}
}

func (f *Fanout) Push(name string, w io.Writer) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.writers[w] = name
}

func (f *Fanout) Drop(w io.Writer) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, found := f.writers[w]
	delete(f.writers, w)
	return found
}

// Names returns the names of all attached writers, one per writer.
func (f *Fanout) Names() []string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	result := make([]string, 0, len(f.writers))
	for _, name := range f.writers {
		result = append(result, name)
	}
	return result
}

func (f *Fanout) Write(b []byte) (int, error) {
	f.mutex.RLock()
	list := make([]io.Writer, 0, len(f.writers))
	for w := range f.writers {
		list = append(list, w)
	}
	f.mutex.RUnlock()

	errs := errs{}
	max := 0
	for _, w := range list {
		if written, err := w.Write(b); err != nil {
			f.Drop(w)
			errs = append(errs, err)
		} else if written > max {
			max = written
		}
	}
	if len(errs) > 0 {
		return max, errs
	}
	return len(b), nil
}
