package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	job "github.com/goliatone/go-job"
)

type entry struct {
	state job.State
	job   *job.Job
}

// MemoryStore is a thread-safe in-memory job store. Transactions buffer
// their writes and apply them on success, so a failed unit leaves no trace.
type MemoryStore struct {
	mu          sync.RWMutex
	jobs        map[int64]entry
	activatable map[string]map[int64]struct{}
	activated   map[int64]struct{}
	backedOff   map[int64]struct{}
	incidents   map[int64][]job.Incident
	nextKey     int64

	listenersMu sync.RWMutex
	listeners   []func(jobType string)
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[int64]entry),
		activatable: make(map[string]map[int64]struct{}),
		activated:   make(map[int64]struct{}),
		backedOff:   make(map[int64]struct{}),
		incidents:   make(map[int64][]job.Incident),
	}
}

// RunInTransaction applies mutations atomically, discarding them when fn fails.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(Tx) error) error {
	if s == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	available, err := s.runLocked(fn)
	if err != nil {
		return err
	}
	s.fireAvailable(available)
	return nil
}

func (s *MemoryStore) runLocked(fn func(Tx) error) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:   s,
		writes:  make(map[int64]*entry),
		nextKey: s.nextKey,
	}
	if err := fn(tx); err != nil {
		return nil, err
	}
	return s.applyLocked(tx), nil
}

// View runs fn against a consistent read-only snapshot.
func (s *MemoryStore) View(ctx context.Context, fn func(Reader) error) error {
	if s == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{store: s, readOnly: true})
}

func (s *MemoryStore) OnJobsAvailable(fn func(jobType string)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// Len is the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) fireAvailable(types []string) {
	if len(types) == 0 {
		return
	}
	s.listenersMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.RUnlock()
	for _, jobType := range types {
		for _, fn := range listeners {
			fn(jobType)
		}
	}
}

func (s *MemoryStore) applyLocked(tx *memTx) []string {
	types := map[string]struct{}{}
	for key, next := range tx.writes {
		prev, existed := s.jobs[key]
		if existed {
			s.unindex(key, prev)
		}
		if next == nil {
			delete(s.jobs, key)
			continue
		}
		s.jobs[key] = *next
		s.index(key, *next)
		if next.state == job.StateActivatable && (!existed || prev.state != job.StateActivatable) {
			types[next.job.Type] = struct{}{}
		}
	}
	for _, inc := range tx.incidents {
		s.incidents[inc.JobKey] = append(s.incidents[inc.JobKey], inc)
	}
	s.nextKey = tx.nextKey

	out := make([]string, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) index(key int64, e entry) {
	switch e.state {
	case job.StateActivatable:
		set, ok := s.activatable[e.job.Type]
		if !ok {
			set = make(map[int64]struct{})
			s.activatable[e.job.Type] = set
		}
		set[key] = struct{}{}
	case job.StateActivated:
		s.activated[key] = struct{}{}
	case job.StateFailed:
		if e.job.RecurringTime > 0 {
			s.backedOff[key] = struct{}{}
		}
	}
}

func (s *MemoryStore) unindex(key int64, e entry) {
	if set, ok := s.activatable[e.job.Type]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(s.activatable, e.job.Type)
		}
	}
	delete(s.activated, key)
	delete(s.backedOff, key)
}

type memTx struct {
	store     *MemoryStore
	writes    map[int64]*entry
	incidents []job.Incident
	nextKey   int64
	readOnly  bool
}

func (tx *memTx) lookup(key int64) (entry, bool) {
	if w, ok := tx.writes[key]; ok {
		if w == nil {
			return entry{}, false
		}
		return *w, true
	}
	e, ok := tx.store.jobs[key]
	return e, ok
}

func (tx *memTx) Get(_ context.Context, key int64) (*job.Job, job.State, error) {
	e, ok := tx.lookup(key)
	if !ok {
		return nil, job.StateNotFound, nil
	}
	return e.job.Clone(), e.state, nil
}

func (tx *memTx) Classify(_ context.Context, key int64) (job.State, error) {
	e, ok := tx.lookup(key)
	if !ok {
		return job.StateNotFound, nil
	}
	return e.state, nil
}

func (tx *memTx) ForEachActivatable(ctx context.Context, jobType string, visit Visitor) error {
	candidates := make([]int64, 0, len(tx.store.activatable[jobType]))
	for key := range tx.store.activatable[jobType] {
		candidates = append(candidates, key)
	}
	for key, w := range tx.writes {
		if w != nil && w.state == job.StateActivatable && w.job.Type == jobType {
			candidates = append(candidates, key)
		}
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	return tx.walk(ctx, candidates, visit, func(e entry) bool {
		return e.state == job.StateActivatable && e.job.Type == jobType
	})
}

func (tx *memTx) ForEachTimedOut(ctx context.Context, now int64, visit Visitor) error {
	match := func(e entry) bool {
		return e.state == job.StateActivated && e.job.Deadline <= now
	}
	keys := tx.collect(tx.store.activated, match)
	sortByTime(tx, keys, func(j *job.Job) int64 { return j.Deadline })
	return tx.walk(ctx, keys, visit, match)
}

func (tx *memTx) ForEachBackedOff(ctx context.Context, now int64, visit Visitor) error {
	match := func(e entry) bool {
		return e.state == job.StateFailed && e.job.RecurringTime > 0 && e.job.RecurringTime <= now
	}
	keys := tx.collect(tx.store.backedOff, match)
	sortByTime(tx, keys, func(j *job.Job) int64 { return j.RecurringTime })
	return tx.walk(ctx, keys, visit, match)
}

func (tx *memTx) collect(base map[int64]struct{}, match func(entry) bool) []int64 {
	keys := make([]int64, 0, len(base))
	for key := range base {
		if e, ok := tx.lookup(key); ok && match(e) {
			keys = append(keys, key)
		}
	}
	for key, w := range tx.writes {
		if _, seen := base[key]; seen {
			continue
		}
		if w != nil && match(*w) {
			keys = append(keys, key)
		}
	}
	return keys
}

func sortByTime(tx *memTx, keys []int64, at func(*job.Job) int64) {
	sort.Slice(keys, func(a, b int) bool {
		ea, _ := tx.lookup(keys[a])
		eb, _ := tx.lookup(keys[b])
		ta, tb := at(ea.job), at(eb.job)
		if ta != tb {
			return ta < tb
		}
		return keys[a] < keys[b]
	})
}

// walk re-reads every key so visitors that mutate earlier keys see current state.
func (tx *memTx) walk(ctx context.Context, keys []int64, visit Visitor, match func(entry) bool) error {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok := tx.lookup(key)
		if !ok || !match(e) {
			continue
		}
		cont, err := visit(key, e.job.Clone())
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (tx *memTx) Incidents(_ context.Context, jobKey int64) ([]job.Incident, error) {
	out := slices.Clone(tx.store.incidents[jobKey])
	for _, inc := range tx.incidents {
		if inc.JobKey == jobKey {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (tx *memTx) Put(_ context.Context, key int64, state job.State, j *job.Job) error {
	if tx.readOnly {
		return errReadOnly
	}
	if j == nil {
		return fmt.Errorf("put job %d: nil job", key)
	}
	if state == job.StateNotFound || state == "" {
		return fmt.Errorf("put job %d: invalid state %q", key, state)
	}
	stored := j.Clone()
	stored.Key = key
	tx.writes[key] = &entry{state: state, job: stored}
	return nil
}

func (tx *memTx) Delete(_ context.Context, key int64) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.writes[key] = nil
	return nil
}

func (tx *memTx) PutIncident(_ context.Context, inc job.Incident) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.incidents = append(tx.incidents, inc)
	return nil
}

func (tx *memTx) NextKey(_ context.Context) (int64, error) {
	if tx.readOnly {
		return 0, errReadOnly
	}
	tx.nextKey++
	return tx.nextKey, nil
}
