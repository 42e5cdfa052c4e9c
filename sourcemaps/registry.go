package sourcemaps

import (
	"sync"

	"github.com/vibego/vibego/vibevm"
)

// Entry records where an instrumented function came from.
type Entry struct {
	Filename  string
	FirstLine int
	Lines     []string
}

// Registry maps instrumented functions back to their source text so
// debug sessions can show code listings.
type Registry struct {
	mu      sync.RWMutex
	entries map[*vibevm.Function]Entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[*vibevm.Function]Entry),
	}
}

func (r *Registry) Register(fn *vibevm.Function, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[fn] = entry
}

func (r *Registry) Lookup(fn *vibevm.Function) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[fn]
	return entry, ok
}

// Line returns the source line at the given file line number, using
// the registry entry when present and the function's own source
// otherwise.
func (r *Registry) Line(fn *vibevm.Function, line int) (string, bool) {
	entry, ok := r.Lookup(fn)
	if !ok {
		entry = Entry{
			Filename:  fn.Filename,
			FirstLine: fn.FirstLine,
			Lines:     fn.SourceLines,
		}
	}
	idx := line - entry.FirstLine
	if idx < 0 || idx >= len(entry.Lines) {
		return "", false
	}
	return entry.Lines[idx], true
}
