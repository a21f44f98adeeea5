package bot

import (
	"github.com/zond/juicebot"
)

// RunningSet holds at most one live script per name.
type RunningSet struct {
	scripts *juicebot.SyncMap[string, *Script]
}

func NewRunningSet() *RunningSet {
	return &RunningSet{
		scripts: juicebot.NewSyncMap[string, *Script](),
	}
}

// Add returns false if a script with the same name is already present.
func (r *RunningSet) Add(s *Script) bool {
	return r.scripts.SetIfMissing(s.Name, s)
}

// Remove removes s, but not a different script with the same name.
func (r *RunningSet) Remove(s *Script) bool {
	return r.scripts.DelIf(s.Name, s)
}

func (r *RunningSet) Get(name string) (*Script, bool) {
	return r.scripts.GetHas(name)
}

func (r *RunningSet) Has(name string) bool {
	return r.scripts.Has(name)
}

func (r *RunningSet) Len() int {
	return r.scripts.Len()
}

// Names returns the running script names in lexical order.
func (r *RunningSet) Names() []string {
	return juicebot.SortedKeys(r.scripts)
}

// Scripts returns the running scripts ordered by name.
func (r *RunningSet) Scripts() []*Script {
	result := []*Script{}
	for _, name := range r.Names() {
		if s, found := r.scripts.GetHas(name); found {
			result = append(result, s)
		}
	}
	return result
}
