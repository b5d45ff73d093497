// Package jobstore keeps the latest state of every order job of a run.
package jobstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("job not found")

// Record is the persisted view of one order job, keyed by run and date.
type Record struct {
	RunID     string    `json:"run_id"`
	Date      string    `json:"date"`
	OrderName string    `json:"order_name"`
	OrderID   string    `json:"order_id,omitempty"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	Files     []string  `json:"files,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	Put(ctx context.Context, r Record) error
	Get(ctx context.Context, runID, date string) (Record, error)
	List(ctx context.Context, runID string) ([]Record, error)
	Close() error
}

// SortByDate orders records by ascending date.
func SortByDate(rs []Record) {
	slices.SortFunc(rs, func(a, b Record) int { return strings.Compare(a.Date, b.Date) })
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]map[string]Record
}

func NewMemory() *Memory {
	return &Memory{runs: make(map[string]map[string]Record)}
}

func (m *Memory) Put(_ context.Context, r Record) error {
	if r.RunID == "" || r.Date == "" {
		return errors.New("job record needs run id and date")
	}
	r.Files = slices.Clone(r.Files)
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[r.RunID]
	if !ok {
		run = make(map[string]Record)
		m.runs[r.RunID] = run
	}
	run[r.Date] = r
	return nil
}

func (m *Memory) Get(_ context.Context, runID, date string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID][date]
	if !ok {
		return Record{}, ErrNotFound
	}
	r.Files = slices.Clone(r.Files)
	return r, nil
}

func (m *Memory) List(_ context.Context, runID string) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.runs[runID]))
	for _, r := range m.runs[runID] {
		r.Files = slices.Clone(r.Files)
		out = append(out, r)
	}
	m.mu.RUnlock()
	SortByDate(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }
