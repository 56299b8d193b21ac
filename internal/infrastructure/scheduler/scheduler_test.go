package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "stub job for tests" }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return s
}

func TestScheduler_Register(t *testing.T) {
	t.Run("rejects nil job", func(t *testing.T) {
		s := newTestScheduler(t)
		err := s.RegisterInterval(nil, time.Minute)
		assert.ErrorIs(t, err, ErrNilJob)
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		s := newTestScheduler(t)
		require.NoError(t, s.RegisterInterval(&stubJob{name: "sweep"}, time.Minute))

		err := s.RegisterInterval(&stubJob{name: "sweep"}, time.Hour)
		assert.ErrorIs(t, err, ErrJobAlreadyExists)
	})

	t.Run("lists registered jobs", func(t *testing.T) {
		s := newTestScheduler(t)
		require.NoError(t, s.RegisterInterval(&stubJob{name: "sweep"}, time.Minute))
		require.NoError(t, s.RegisterCron(&stubJob{name: "nightly"}, "0 3 * * *"))

		infos := s.ListJobs()
		require.Len(t, infos, 2)

		names := map[string]bool{}
		for _, info := range infos {
			names[info.Name] = true
			assert.Nil(t, info.LastResult)
		}
		assert.True(t, names["sweep"])
		assert.True(t, names["nightly"])
	})
}

func TestScheduler_RunNow(t *testing.T) {
	t.Run("executes the job and records the result", func(t *testing.T) {
		s := newTestScheduler(t)
		job := &stubJob{name: "sweep"}
		require.NoError(t, s.RegisterInterval(job, time.Hour))

		result, err := s.RunNow(context.Background(), "sweep")
		require.NoError(t, err)
		assert.Equal(t, 1, job.runs)
		assert.True(t, result.Success)
		assert.NoError(t, result.Error)

		infos := s.ListJobs()
		require.Len(t, infos, 1)
		require.NotNil(t, infos[0].LastResult)
		assert.Equal(t, "sweep", infos[0].LastResult.JobName)
	})

	t.Run("captures job failure", func(t *testing.T) {
		s := newTestScheduler(t)
		jobErr := errors.New("boom")
		require.NoError(t, s.RegisterInterval(&stubJob{name: "sweep", err: jobErr}, time.Hour))

		result, err := s.RunNow(context.Background(), "sweep")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.Error, jobErr)
	})

	t.Run("unknown job", func(t *testing.T) {
		s := newTestScheduler(t)
		_, err := s.RunNow(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.RegisterInterval(&stubJob{name: "sweep"}, time.Hour))

	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordExecution("sweep", 100*time.Millisecond, true)
	m.RecordExecution("sweep", 300*time.Millisecond, false)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalSuccesses)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 1e-9)
	assert.Equal(t, 200*time.Millisecond, snap.AverageDuration)
}
