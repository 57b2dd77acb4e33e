package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/jobs"
	"github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (d *recordingDispatcher) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

type runnerStub struct {
	mu        sync.Mutex
	calls     int
	requestID string
	requester string
	result    *dto.GenerationResult
	err       error
}

func (r *runnerStub) RunGeneration(ctx context.Context, _ dto.GenerateTimetableRequest, requester *models.JWTClaims) (*dto.GenerationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if requester != nil {
		r.requester = requester.UserID
	}
	r.requestID = requestid.FromContext(ctx)
	return r.result, r.err
}

func TestGenerationJobSubmitQueuesByScope(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := NewGenerationJobService(NewGenerationJobStore(time.Minute), dispatcher, nil, nil)

	resp, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 2, Semester: 4}, adminClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, models.GenerationJobQueued, resp.Status)
	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, "dept:2:sem:4", dispatcher.jobs[0].Key)
	assert.Equal(t, GenerationJobType, dispatcher.jobs[0].Type)

	detail, err := svc.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", detail.Job.RequestedBy)
	assert.Nil(t, detail.Result)
}

func TestGenerationJobSubmitEnqueueFailure(t *testing.T) {
	svc := NewGenerationJobService(nil, &recordingDispatcher{err: errors.New("queue stopped")}, nil, nil)

	_, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 2, Semester: 4}, adminClaims("u"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGenerationJobSubmitRejectsForeignDepartment(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := NewGenerationJobService(nil, dispatcher, nil, nil)
	dept := int64(5)

	_, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 2, Semester: 4},
		&models.JWTClaims{UserID: "hod-5", Role: models.RoleHOD, DepartmentID: &dept})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, dispatcher.jobs)
}

func TestGenerationJobGetUnknown(t *testing.T) {
	svc := NewGenerationJobService(nil, &recordingDispatcher{}, nil, nil)
	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationWorkerSuccess(t *testing.T) {
	store := NewGenerationJobStore(time.Minute)
	dispatcher := &recordingDispatcher{}
	svc := NewGenerationJobService(store, dispatcher, nil, nil)
	runner := &runnerStub{result: &dto.GenerationResult{Status: dto.GenerationPublished, Timetable: &models.Timetable{ID: "tt-9"}}}
	worker := NewGenerationWorker(store, runner, nil)

	ctx := requestid.WithContext(context.Background(), "req-42")
	resp, err := svc.Submit(ctx, dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 1}, adminClaims("u"))
	require.NoError(t, err)
	require.NoError(t, worker.Handle(context.Background(), dispatcher.jobs[0]))
	assert.Equal(t, "req-42", runner.requestID)
	assert.Equal(t, "u", runner.requester)

	detail, err := svc.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationJobSucceeded, detail.Job.Status)
	require.NotNil(t, detail.Job.TimetableID)
	assert.Equal(t, "tt-9", *detail.Job.TimetableID)
	assert.Equal(t, 1, detail.Job.Attempts)
	require.NotNil(t, detail.Result)
	assert.Equal(t, dto.GenerationPublished, detail.Result.Status)
}

func TestGenerationWorkerClientErrorFailsWithoutRetry(t *testing.T) {
	store := NewGenerationJobStore(time.Minute)
	dispatcher := &recordingDispatcher{}
	svc := NewGenerationJobService(store, dispatcher, nil, nil)
	runner := &runnerStub{err: appErrors.Clone(appErrors.ErrStructuralInput, "no classrooms available")}
	worker := NewGenerationWorker(store, runner, nil)

	resp, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 1}, adminClaims("u"))
	require.NoError(t, err)
	require.NoError(t, worker.Handle(context.Background(), dispatcher.jobs[0]))

	detail, err := svc.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationJobFailed, detail.Job.Status)
	require.NotNil(t, detail.Job.Error)
	assert.Contains(t, *detail.Job.Error, "no classrooms")
}

func TestGenerationWorkerInfrastructureErrorRetriesThenFails(t *testing.T) {
	store := NewGenerationJobStore(time.Minute)
	runner := &runnerStub{err: errors.New("connection reset")}
	worker := NewGenerationWorker(store, runner, nil)
	queue := jobs.NewQueue("generation-test", worker.Handle, jobs.QueueConfig{
		Workers:    2,
		MaxRetries: 1,
		RetryDelay: 5 * time.Millisecond,
		OnFailure:  worker.OnFailure,
	})
	queue.Start(context.Background())
	defer queue.Stop()
	svc := NewGenerationJobService(store, queue, nil, nil)

	resp, err := svc.Submit(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 2}, adminClaims("u"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		detail, err := svc.Get(context.Background(), resp.JobID)
		return err == nil && detail.Job.Status == models.GenerationJobFailed
	}, 2*time.Second, 5*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 2, runner.calls)
}

func TestGenerationJobStoreExpiresFinishedJobs(t *testing.T) {
	store := NewGenerationJobStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	store.save(models.GenerationJob{ID: "j1", Status: models.GenerationJobSucceeded, UpdatedAt: now}, dto.GenerateTimetableRequest{}, models.JWTClaims{}, "")
	store.save(models.GenerationJob{ID: "j2", Status: models.GenerationJobQueued, UpdatedAt: now}, dto.GenerateTimetableRequest{}, models.JWTClaims{}, "")

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok := store.get("j1")
	assert.False(t, ok)
	_, ok = store.get("j2")
	assert.True(t, ok)
}
