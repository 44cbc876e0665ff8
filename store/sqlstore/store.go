package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/store"
)

const (
	keySequence = "job_key"
	pageSize    = 128
)

// Config holds connection and pool settings.
type Config struct {
	Driver          string
	DSN             string
	TablePrefix     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements store.Store on top of a SQL database. Ordering semantics
// match the in-memory store: ascending key for activation, (time, key) for
// deadline and backoff scans.
type Store struct {
	db             *sqlx.DB
	jobsTable      string
	incidentsTable string
	sequenceTable  string

	listenersMu sync.RWMutex
	listeners   []func(jobType string)
}

var _ store.Store = (*Store)(nil)

// Open connects, applies pool settings and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	db, err := sqlx.ConnectContext(ctx, driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite serialises writers, one connection also keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s, err := New(ctx, db, cfg.TablePrefix)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. Tables are named <prefix>jobs,
// <prefix>incidents and <prefix>sequences.
func New(ctx context.Context, db *sqlx.DB, prefix string) (*Store, error) {
	if db == nil {
		return nil, store.ErrNotConfigured
	}
	s := &Store{
		db:             db,
		jobsTable:      prefix + "jobs",
		incidentsTable: prefix + "incidents",
		sequenceTable:  prefix + "sequences",
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunInTransaction executes fn in a DB transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(store.Tx) error) error {
	if s == nil || s.db == nil {
		return store.ErrNotConfigured
	}
	if fn == nil {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stx := &sqlTx{parent: s, tx: tx, available: map[string]struct{}{}}
	if err := runGuarded(stx, fn); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.fireAvailable(stx.available)
	return nil
}

// runGuarded rolls back through the caller when fn panics.
func runGuarded(stx *sqlTx, fn func(store.Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = stx.tx.Rollback()
			panic(r)
		}
	}()
	return fn(stx)
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(store.Reader) error) error {
	if s == nil || s.db == nil {
		return store.ErrNotConfigured
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{parent: s, tx: tx, readOnly: true})
}

func (s *Store) OnJobsAvailable(fn func(jobType string)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *Store) fireAvailable(set map[string]struct{}) {
	if len(set) == 0 {
		return
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)

	s.listenersMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.RUnlock()
	for _, t := range types {
		for _, fn := range listeners {
			fn(t)
		}
	}
}

type jobRow struct {
	Key   int64  `db:"job_key"`
	State string `db:"state"`
	Body  []byte `db:"body"`
}

func (r jobRow) decode() (*job.Job, error) {
	var j job.Job
	if err := job.Unmarshal(r.Body, &j); err != nil {
		return nil, fmt.Errorf("decode job %d: %w", r.Key, err)
	}
	j.Key = r.Key
	return &j, nil
}

type sqlTx struct {
	parent    *Store
	tx        *sqlx.Tx
	readOnly  bool
	available map[string]struct{}
}

var errReadOnly = stderrors.New("sqlstore: read-only view")

func (t *sqlTx) q(query string) string {
	return t.tx.Rebind(query)
}

func (t *sqlTx) Get(ctx context.Context, key int64) (*job.Job, job.State, error) {
	var row jobRow
	err := t.tx.GetContext(ctx, &row, t.q(fmt.Sprintf(`SELECT job_key, state, body FROM %s WHERE job_key = ?`, t.parent.jobsTable)), key)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, job.StateNotFound, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get job %d: %w", key, err)
	}
	j, err := row.decode()
	if err != nil {
		return nil, "", err
	}
	return j, job.State(row.State), nil
}

func (t *sqlTx) Classify(ctx context.Context, key int64) (job.State, error) {
	var state string
	err := t.tx.GetContext(ctx, &state, t.q(fmt.Sprintf(`SELECT state FROM %s WHERE job_key = ?`, t.parent.jobsTable)), key)
	if stderrors.Is(err, sql.ErrNoRows) {
		return job.StateNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to classify job %d: %w", key, err)
	}
	return job.State(state), nil
}

func (t *sqlTx) ForEachActivatable(ctx context.Context, jobType string, visit store.Visitor) error {
	query := t.q(fmt.Sprintf(`SELECT job_key, state, body FROM %s
		WHERE state = ? AND job_type = ? AND job_key > ?
		ORDER BY job_key LIMIT %d`, t.parent.jobsTable, pageSize))
	last := int64(-1 << 62)
	for {
		var rows []jobRow
		if err := t.tx.SelectContext(ctx, &rows, query, string(job.StateActivatable), jobType, last); err != nil {
			return fmt.Errorf("failed to scan activatable jobs: %w", err)
		}
		keys := make([]int64, len(rows))
		for i, r := range rows {
			keys[i] = r.Key
		}
		done, err := t.walk(ctx, keys, visit, func(state job.State, j *job.Job) bool {
			return state == job.StateActivatable && j.Type == jobType
		})
		if err != nil || done || len(rows) < pageSize {
			return err
		}
		last = rows[len(rows)-1].Key
	}
}

func (t *sqlTx) ForEachTimedOut(ctx context.Context, now int64, visit store.Visitor) error {
	return t.scanByTime(ctx, "deadline", job.StateActivated, now, visit, func(state job.State, j *job.Job) bool {
		return state == job.StateActivated && j.Deadline <= now
	})
}

func (t *sqlTx) ForEachBackedOff(ctx context.Context, now int64, visit store.Visitor) error {
	return t.scanByTime(ctx, "recurring_time", job.StateFailed, now, visit, func(state job.State, j *job.Job) bool {
		return state == job.StateFailed && j.RecurringTime > 0 && j.RecurringTime <= now
	})
}

type timedRow struct {
	Key int64 `db:"job_key"`
	At  int64 `db:"at"`
}

func (t *sqlTx) scanByTime(ctx context.Context, column string, state job.State, now int64, visit store.Visitor, match func(job.State, *job.Job) bool) error {
	query := t.q(fmt.Sprintf(`SELECT job_key, %[1]s AS at FROM %[2]s
		WHERE state = ? AND %[1]s > 0 AND %[1]s <= ? AND (%[1]s > ? OR (%[1]s = ? AND job_key > ?))
		ORDER BY %[1]s, job_key LIMIT %[3]d`, column, t.parent.jobsTable, pageSize))
	lastAt, lastKey := int64(0), int64(-1<<62)
	for {
		var rows []timedRow
		if err := t.tx.SelectContext(ctx, &rows, query, string(state), now, lastAt, lastAt, lastKey); err != nil {
			return fmt.Errorf("failed to scan %s: %w", column, err)
		}
		keys := make([]int64, len(rows))
		for i, r := range rows {
			keys[i] = r.Key
		}
		done, err := t.walk(ctx, keys, visit, match)
		if err != nil || done || len(rows) < pageSize {
			return err
		}
		lastAt, lastKey = rows[len(rows)-1].At, rows[len(rows)-1].Key
	}
}

// walk re-reads each key so visitors that already mutated a job see its current state.
func (t *sqlTx) walk(ctx context.Context, keys []int64, visit store.Visitor, match func(job.State, *job.Job) bool) (bool, error) {
	for _, key := range keys {
		j, state, err := t.Get(ctx, key)
		if err != nil {
			return true, err
		}
		if state == job.StateNotFound || !match(state, j) {
			continue
		}
		cont, err := visit(key, j)
		if err != nil {
			return true, err
		}
		if !cont {
			return true, nil
		}
	}
	return false, nil
}

func (t *sqlTx) Incidents(ctx context.Context, jobKey int64) ([]job.Incident, error) {
	var bodies [][]byte
	err := t.tx.SelectContext(ctx, &bodies, t.q(fmt.Sprintf(`SELECT body FROM %s WHERE job_key = ? ORDER BY incident_key`, t.parent.incidentsTable)), jobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents of job %d: %w", jobKey, err)
	}
	out := make([]job.Incident, 0, len(bodies))
	for _, body := range bodies {
		var inc job.Incident
		if err := job.Unmarshal(body, &inc); err != nil {
			return nil, fmt.Errorf("decode incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, nil
}

func (t *sqlTx) Put(ctx context.Context, key int64, state job.State, j *job.Job) error {
	if t.readOnly {
		return errReadOnly
	}
	if j == nil {
		return fmt.Errorf("put job %d: nil job", key)
	}
	if state == job.StateNotFound || state == "" {
		return fmt.Errorf("put job %d: invalid state %q", key, state)
	}
	prev, err := t.Classify(ctx, key)
	if err != nil {
		return err
	}
	stored := j.Clone()
	stored.Key = key
	body, err := job.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode job %d: %w", key, err)
	}
	_, err = t.tx.ExecContext(ctx, t.q(fmt.Sprintf(`INSERT INTO %s (job_key, job_type, state, deadline, recurring_time, tenant_id, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_key) DO UPDATE SET
			job_type = excluded.job_type,
			state = excluded.state,
			deadline = excluded.deadline,
			recurring_time = excluded.recurring_time,
			tenant_id = excluded.tenant_id,
			body = excluded.body`, t.parent.jobsTable)),
		key, stored.Type, string(state), stored.Deadline, stored.RecurringTime, stored.TenantID, body)
	if err != nil {
		return fmt.Errorf("failed to put job %d: %w", key, err)
	}
	if state == job.StateActivatable && prev != job.StateActivatable {
		t.available[stored.Type] = struct{}{}
	}
	return nil
}

func (t *sqlTx) Delete(ctx context.Context, key int64) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(ctx, t.q(fmt.Sprintf(`DELETE FROM %s WHERE job_key = ?`, t.parent.jobsTable)), key)
	if err != nil {
		return fmt.Errorf("failed to delete job %d: %w", key, err)
	}
	return nil
}

func (t *sqlTx) PutIncident(ctx context.Context, inc job.Incident) error {
	if t.readOnly {
		return errReadOnly
	}
	body, err := job.Marshal(inc)
	if err != nil {
		return fmt.Errorf("encode incident %d: %w", inc.Key, err)
	}
	_, err = t.tx.ExecContext(ctx, t.q(fmt.Sprintf(`INSERT INTO %s (incident_key, job_key, error_type, body) VALUES (?, ?, ?, ?)`, t.parent.incidentsTable)),
		inc.Key, inc.JobKey, string(inc.ErrorType), body)
	if err != nil {
		return fmt.Errorf("failed to put incident %d: %w", inc.Key, err)
	}
	return nil
}

func (t *sqlTx) NextKey(ctx context.Context) (int64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	if _, err := t.tx.ExecContext(ctx, t.q(fmt.Sprintf(`UPDATE %s SET value = value + 1 WHERE name = ?`, t.parent.sequenceTable)), keySequence); err != nil {
		return 0, fmt.Errorf("failed to advance key sequence: %w", err)
	}
	var next int64
	if err := t.tx.GetContext(ctx, &next, t.q(fmt.Sprintf(`SELECT value FROM %s WHERE name = ?`, t.parent.sequenceTable)), keySequence); err != nil {
		return 0, fmt.Errorf("failed to read key sequence: %w", err)
	}
	return next, nil
}
