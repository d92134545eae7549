package inmemory

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/jobs"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, store *Store, id string) *jobs.ReviewJob {
	t.Helper()
	var job *jobs.ReviewJob
	require.Eventually(t, func() bool {
		var err error
		job, err = store.Get(context.Background(), id)
		return err == nil && job.Done()
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestQueue_CompletesJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, 2, store, zerolog.Nop())
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.ReviewJob) ([]coach.Finding, error) {
		return []coach.Finding{{VoucherNo: "V1"}}, nil
	}))

	job := &jobs.ReviewJob{Source: "journal.csv", Rows: 3}
	require.NoError(t, q.Publish(ctx, job))
	require.NotEmpty(t, job.JobID)

	got := waitDone(t, store, job.JobID)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "V1", got.Findings[0].VoucherNo)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Ledger)
}

func TestQueue_FailedJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(1, 1, store, zerolog.Nop())
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.ReviewJob) ([]coach.Finding, error) {
		return nil, coach.ErrNotConfigured
	}))

	job := &jobs.ReviewJob{Source: "gs://ledgers/journal.csv"}
	require.NoError(t, q.Publish(ctx, job))

	got := waitDone(t, store, job.JobID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Contains(t, got.Error, coach.ErrNotConfigured.Error())
	assert.Empty(t, got.Findings)
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, NewStore(), zerolog.Nop())
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	err := q.Publish(context.Background(), &jobs.ReviewJob{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), jobs.ErrQueueClosed)
}

func TestQueue_PublishHonoursContext(t *testing.T) {
	q := NewQueue(0, 1, NewStore(), zerolog.Nop())
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Publish(ctx, &jobs.ReviewJob{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestQueue_StopFailsBufferedJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, 1, store, zerolog.Nop())

	var ids []string
	for i := 0; i < 2; i++ {
		job := &jobs.ReviewJob{Source: "journal.csv"}
		require.NoError(t, q.Publish(ctx, job))
		ids = append(ids, job.JobID)
	}

	require.NoError(t, q.Stop(ctx))

	for _, id := range ids {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusFailed, got.Status)
		assert.Equal(t, jobs.ErrQueueClosed.Error(), got.Error)
		assert.NotNil(t, got.CompletedAt)
		assert.Nil(t, got.StartedAt)
	}
}

func TestQueue_StopFinishesRunningJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, 1, store, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.ReviewJob) ([]coach.Finding, error) {
		if job.Source == "first.csv" {
			close(started)
			<-release
		}
		return nil, nil
	}))

	first := &jobs.ReviewJob{Source: "first.csv"}
	require.NoError(t, q.Publish(ctx, first))
	<-started

	queued := &jobs.ReviewJob{Source: "second.csv"}
	require.NoError(t, q.Publish(ctx, queued))

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(ctx) }()

	// the buffered job is failed before the running one finishes
	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, queued.JobID)
		return err == nil && got.Status == jobs.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	require.NoError(t, <-stopped)

	got, err := store.Get(ctx, first.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
}

func TestQueue_JobLoggerInContext(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewStore()
	q := NewQueue(1, 1, store, logger.NewWithWriter(buf))
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.ReviewJob) ([]coach.Finding, error) {
		reqLog := logger.FromContext(ctx)
		reqLog.Info().Msg("reviewing")
		return nil, nil
	}))

	job := &jobs.ReviewJob{Source: "journal.csv", Rows: 7}
	require.NoError(t, q.Publish(ctx, job))
	waitDone(t, store, job.JobID)

	out := buf.String()
	assert.Contains(t, out, `"message":"reviewing"`)
	assert.Contains(t, out, `"job_id":"`+job.JobID+`"`)
	assert.Contains(t, out, `"rows":7`)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	for i, st := range []jobs.Status{jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCompleted} {
		require.NoError(t, s.Save(ctx, &jobs.ReviewJob{
			JobID:     string(rune('a' + i)),
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tests := []struct {
		name   string
		filter jobs.Filter
		want   []string
	}{
		{"all newest first", jobs.Filter{}, []string{"c", "b", "a"}},
		{"by status", jobs.Filter{Status: jobs.StatusCompleted}, []string{"c", "a"}},
		{"limit", jobs.Filter{Limit: 1}, []string{"c"}},
		{"offset", jobs.Filter{Offset: 2}, []string{"a"}},
		{"offset past end", jobs.Filter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, j := range list {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	_, err := NewStore().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	assert.Error(t, NewStore().Save(context.Background(), &jobs.ReviewJob{}))
}
