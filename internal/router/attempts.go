package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/teemow/mailroute/internal/ledger"
)

// attempts counts failed routing attempts per payload name, persisted as
// a JSON object.
type attempts struct {
	path   string
	counts map[string]int
	dirty  bool
}

func loadAttempts(path string) (*attempts, error) {
	a := &attempts{path: path, counts: make(map[string]int)}
	if path == "" {
		return a, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return a, fmt.Errorf("failed to read attempts %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &a.counts); err != nil {
		a.counts = make(map[string]int)
		return a, fmt.Errorf("malformed attempts %s: %w", path, err)
	}
	return a, nil
}

func (a *attempts) inc(name string) int {
	a.counts[name]++
	a.dirty = true
	return a.counts[name]
}

func (a *attempts) clear(name string) {
	if _, ok := a.counts[name]; ok {
		delete(a.counts, name)
		a.dirty = true
	}
}

func (a *attempts) get(name string) int {
	return a.counts[name]
}

func (a *attempts) save() error {
	if !a.dirty || a.path == "" {
		return nil
	}
	if err := ledger.WriteJSONAtomic(a.path, a.counts); err != nil {
		return err
	}
	a.dirty = false
	return nil
}
