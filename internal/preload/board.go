package preload

import (
	"sort"
	"sync"
)

// Board keeps latest progress snapshot per provider key.
// Older run snapshots never overwrite a newer run.
type Board struct {
	mu     sync.Mutex
	last   map[string]Progress
	order  map[string]uint64 // provider -> run sequence
	runs   map[string]uint64 // run id -> sequence
	serial uint64
}

var _ Observer = new(Board)

func NewBoard() *Board {
	return &Board{
		last:  make(map[string]Progress),
		order: make(map[string]uint64),
		runs:  make(map[string]uint64),
	}
}

func (self *Board) OnProgress(p Progress) {
	self.mu.Lock()
	defer self.mu.Unlock()
	seq, ok := self.runs[p.RunID]
	if !ok {
		self.serial++
		seq = self.serial
		self.runs[p.RunID] = seq
	}
	if !p.IsLoading {
		delete(self.runs, p.RunID)
	}
	if seq < self.order[p.Provider] {
		return
	}
	self.order[p.Provider] = seq
	self.last[p.Provider] = p
}

func (self *Board) Last(provider string) (Progress, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	p, ok := self.last[provider]
	return p, ok
}

func (self *Board) All() map[string]Progress {
	self.mu.Lock()
	defer self.mu.Unlock()
	m := make(map[string]Progress, len(self.last))
	for k, p := range self.last {
		m[k] = p
	}
	return m
}

func (self *Board) Providers() []string {
	self.mu.Lock()
	defer self.mu.Unlock()
	ks := make([]string, 0, len(self.last))
	for k := range self.last {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
