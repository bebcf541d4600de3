package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitplan/internal/model"
)

func TestMemoryJobLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	job, err := m.CreateJob(ctx, model.Job{Request: model.OptimizeRequest{WorkerNames: []string{"a"}}})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	job.Status = model.JobFailed
	job.Error = &model.JobError{Code: "infeasible", Message: "no feasible routing"}
	require.NoError(t, m.UpdateJob(ctx, job))

	got, err := m.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.True(t, got.Terminal())
	assert.Equal(t, job.CreatedAt, got.CreatedAt)

	_, err = m.GetJob(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.UpdateJob(ctx, model.Job{ID: "missing"}), ErrNotFound)
}

func TestMemoryListJobsPaginates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var ids []string
	for i := 0; i < 5; i++ {
		j, err := m.CreateJob(ctx, model.Job{})
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}
	done := model.Job{ID: ids[1], Status: model.JobSucceeded}
	require.NoError(t, m.UpdateJob(ctx, done))

	page, next, err := m.ListJobs(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Equal(t, ids[1], next)

	page, next, err = m.ListJobs(ctx, "", next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[3]}, []string{page[0].ID, page[1].ID})

	page, next, err = m.ListJobs(ctx, "", next, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Empty(t, next)

	page, _, err = m.ListJobs(ctx, model.JobSucceeded, "", 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

func TestMemoryWebhookQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return now }

	id, err := m.EnqueueWebhook(ctx, "job-1", model.EventJobCompleted, "http://hook", "s", []byte(`{}`))
	require.NoError(t, err)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, DeliveryPending, due[0].Status)

	later := now.Add(time.Minute)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry is not due before its next attempt")

	now = later
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "boom", 500, 9))
	ds, err := m.ListWebhookDeliveries(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, DeliveryFailed, ds[0].Status)
	assert.Equal(t, 2, ds[0].Attempts)

	require.ErrorIs(t, m.MarkWebhookDelivery(ctx, "nope", true, nil, "", 200, 1), ErrNotFound)
}
