// Package dbm is the key/value store behind the storage capability of scripts.
package dbm

import (
	"fmt"
	"os"
	"sync"

	"github.com/estraier/tkrzw-go"
	"github.com/pkg/errors"
	"github.com/zond/juicebot"
)

var (
	ErrEmptyKey = errors.New("key is required")
)

type Hash struct {
	dbm   *tkrzw.DBM
	mutex *sync.RWMutex
}

// OpenHash opens, or creates, the hash file at path + ".tkh".
func OpenHash(path string) (*Hash, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkh", path), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"restore_mode":     "RESTORE_SYNC|RESTORE_NO_SHORTCUTS|RESTORE_WITH_HARDSYNC",
	})
	if !stat.IsOK() {
		return nil, juicebot.WithStack(stat)
	}
	return &Hash{dbm, &sync.RWMutex{}}, nil
}

func (h *Hash) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Close(); !stat.IsOK() {
		return juicebot.WithStack(stat)
	}
	return nil
}

func (h *Hash) Get(k string) ([]byte, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	b, stat := h.dbm.Get(k)
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return nil, juicebot.WithStack(os.ErrNotExist)
	} else if !stat.IsOK() {
		return nil, juicebot.WithStack(stat)
	}
	return b, nil
}

func (h *Hash) Set(k string, v []byte, overwrite bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Set(k, v, overwrite); !stat.IsOK() {
		return juicebot.WithStack(stat)
	}
	return nil
}

// Del removes k. Removing a missing key is not an error.
func (h *Hash) Del(k string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Remove(k); stat.GetCode() == tkrzw.StatusNotFoundError {
		return nil
	} else if !stat.IsOK() {
		return juicebot.WithStack(stat)
	}
	return nil
}

func (h *Hash) Count() (int64, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	count, stat := h.dbm.Count()
	if !stat.IsOK() {
		return 0, juicebot.WithStack(stat)
	}
	return count, nil
}

// Namespace returns a view of h where every key is private to name.
func (h *Hash) Namespace(name string) *Namespace {
	return &Namespace{
		hash:   h,
		prefix: name + "\x00",
	}
}

// Namespace stores JSON documents under keys private to one script.
type Namespace struct {
	hash   *Hash
	prefix string
}

func (n *Namespace) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, juicebot.WithStack(ErrEmptyKey)
	}
	b, err := n.hash.Get(n.prefix + key)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, juicebot.WithStack(err)
	}
	return string(b), true, nil
}

func (n *Namespace) Set(key string, value string) error {
	if key == "" {
		return juicebot.WithStack(ErrEmptyKey)
	}
	return n.hash.Set(n.prefix+key, []byte(value), true)
}

func (n *Namespace) Remove(key string) error {
	if key == "" {
		return juicebot.WithStack(ErrEmptyKey)
	}
	return n.hash.Del(n.prefix + key)
}
