package store

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	job "github.com/goliatone/go-job"
)

func putJobs(t *testing.T, s Store, jobs map[int64]job.State, jobType string) {
	t.Helper()
	err := s.RunInTransaction(context.Background(), func(tx Tx) error {
		for key, state := range jobs {
			if err := tx.Put(context.Background(), key, state, &job.Job{Type: jobType, Retries: 1, Deadline: key * 10}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreClassify(t *testing.T) {
	s := NewMemoryStore()
	putJobs(t, s, map[int64]job.State{
		1: job.StateActivatable,
		2: job.StateActivated,
		3: job.StateFailed,
	}, "pay")

	ctx := context.Background()
	err := s.View(ctx, func(r Reader) error {
		for key, want := range map[int64]job.State{1: job.StateActivatable, 2: job.StateActivated, 3: job.StateFailed, 4: job.StateNotFound} {
			for range 3 {
				got, err := r.Classify(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, want, got, "key %d", key)
			}
		}
		j, state, err := r.Get(ctx, 4)
		require.NoError(t, err)
		assert.Nil(t, j)
		assert.Equal(t, job.StateNotFound, state)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreRollback(t *testing.T) {
	s := NewMemoryStore()
	putJobs(t, s, map[int64]job.State{1: job.StateActivatable}, "pay")

	boom := stderrors.New("boom")
	ctx := context.Background()
	err := s.RunInTransaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.Delete(ctx, 1))
		require.NoError(t, tx.Put(ctx, 2, job.StateActivatable, &job.Job{Type: "pay"}))
		_, err := tx.NextKey(ctx)
		require.NoError(t, err)
		state, err := tx.Classify(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, job.StateNotFound, state)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(r Reader) error {
		state, _ := r.Classify(ctx, 1)
		assert.Equal(t, job.StateActivatable, state)
		state, _ = r.Classify(ctx, 2)
		assert.Equal(t, job.StateNotFound, state)
		return nil
	}))

	require.NoError(t, s.RunInTransaction(ctx, func(tx Tx) error {
		key, err := tx.NextKey(ctx)
		assert.Equal(t, int64(1), key)
		return err
	}))
}

func TestMemoryStoreActivatableOrder(t *testing.T) {
	s := NewMemoryStore()
	putJobs(t, s, map[int64]job.State{
		9: job.StateActivatable,
		3: job.StateActivatable,
		5: job.StateActivated,
		7: job.StateActivatable,
	}, "pay")
	putJobs(t, s, map[int64]job.State{4: job.StateActivatable}, "ship")

	ctx := context.Background()
	var seen []int64
	require.NoError(t, s.RunInTransaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.Put(ctx, 1, job.StateActivatable, &job.Job{Type: "pay"}))
		require.NoError(t, tx.Put(ctx, 7, job.StateActivated, &job.Job{Type: "pay"}))
		return tx.ForEachActivatable(ctx, "pay", func(key int64, j *job.Job) (bool, error) {
			assert.Equal(t, key, j.Key)
			seen = append(seen, key)
			return true, nil
		})
	}))
	assert.Equal(t, []int64{1, 3, 9}, seen)

	seen = nil
	require.NoError(t, s.View(ctx, func(r Reader) error {
		return r.ForEachActivatable(ctx, "pay", func(key int64, _ *job.Job) (bool, error) {
			seen = append(seen, key)
			return len(seen) < 2, nil
		})
	}))
	assert.Equal(t, []int64{1, 3}, seen)
}

func TestMemoryStoreTimedOutOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.RunInTransaction(ctx, func(tx Tx) error {
		for key, deadline := range map[int64]int64{1: 300, 2: 100, 3: 100, 4: 500} {
			if err := tx.Put(ctx, key, job.StateActivated, &job.Job{Type: "pay", Deadline: deadline}); err != nil {
				return err
			}
		}
		return tx.Put(ctx, 5, job.StateActivatable, &job.Job{Type: "pay", Deadline: 1})
	}))

	var seen []int64
	require.NoError(t, s.View(ctx, func(r Reader) error {
		return r.ForEachTimedOut(ctx, 300, func(key int64, _ *job.Job) (bool, error) {
			seen = append(seen, key)
			return true, nil
		})
	}))
	assert.Equal(t, []int64{2, 3, 1}, seen)
}

func TestMemoryStoreBackedOff(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.RunInTransaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.Put(ctx, 1, job.StateFailed, &job.Job{Type: "pay", RecurringTime: 50}))
		require.NoError(t, tx.Put(ctx, 2, job.StateFailed, &job.Job{Type: "pay"}))
		return tx.Put(ctx, 3, job.StateFailed, &job.Job{Type: "pay", RecurringTime: 500})
	}))

	var seen []int64
	require.NoError(t, s.View(ctx, func(r Reader) error {
		return r.ForEachBackedOff(ctx, 100, func(key int64, _ *job.Job) (bool, error) {
			seen = append(seen, key)
			return true, nil
		})
	}))
	assert.Equal(t, []int64{1}, seen)
}

func TestMemoryStoreJobsAvailable(t *testing.T) {
	s := NewMemoryStore()
	var fired []string
	s.OnJobsAvailable(func(jobType string) { fired = append(fired, jobType) })

	putJobs(t, s, map[int64]job.State{1: job.StateActivatable}, "pay")
	putJobs(t, s, map[int64]job.State{2: job.StateActivated}, "ship")
	assert.Equal(t, []string{"pay"}, fired)

	// rewriting an already activatable job is not news
	putJobs(t, s, map[int64]job.State{1: job.StateActivatable}, "pay")
	assert.Equal(t, []string{"pay"}, fired)

	_ = s.RunInTransaction(context.Background(), func(tx Tx) error {
		_ = tx.Put(context.Background(), 3, job.StateActivatable, &job.Job{Type: "mail"})
		return stderrors.New("abort")
	})
	assert.Equal(t, []string{"pay"}, fired)
}

func TestMemoryStoreIncidentsAndReadOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.RunInTransaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.PutIncident(ctx, job.Incident{Key: 10, JobKey: 1, ErrorType: job.ErrorTypeJobNoRetries}))
		incidents, err := tx.Incidents(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, incidents, 1)
		return nil
	}))

	require.NoError(t, s.View(ctx, func(r Reader) error {
		incidents, err := r.Incidents(ctx, 1)
		require.NoError(t, err)
		require.Len(t, incidents, 1)
		assert.Equal(t, job.ErrorTypeJobNoRetries, incidents[0].ErrorType)

		tx, ok := r.(Tx)
		require.True(t, ok)
		assert.Error(t, tx.Delete(ctx, 1))
		return nil
	}))
}
