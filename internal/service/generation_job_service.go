package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/jobs"
	"github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

// GenerationJobType labels queued generation jobs.
const GenerationJobType = "timetable_generation"

type generationDispatcher interface {
	Enqueue(job jobs.Job) error
}

type generationRunner interface {
	RunGeneration(ctx context.Context, req dto.GenerateTimetableRequest, requester *models.JWTClaims) (*dto.GenerationResult, error)
}

type storedGenerationJob struct {
	job       models.GenerationJob
	request   dto.GenerateTimetableRequest
	requester models.JWTClaims
	requestID string
	result    *dto.GenerationResult
}

// GenerationJobStore keeps generation jobs in memory. Finished jobs expire after the TTL.
type GenerationJobStore struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]*storedGenerationJob
	now   func() time.Time
}

// NewGenerationJobStore constructs a store.
func NewGenerationJobStore(ttl time.Duration) *GenerationJobStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &GenerationJobStore{ttl: ttl, items: make(map[string]*storedGenerationJob), now: time.Now}
}

func (s *GenerationJobStore) save(job models.GenerationJob, req dto.GenerateTimetableRequest, requester models.JWTClaims, requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.items[job.ID] = &storedGenerationJob{job: job, request: req, requester: requester, requestID: requestID}
}

func (s *GenerationJobStore) get(id string) (dto.GenerationJobDetail, bool) {
	s.mu.RLock()
	item, ok := s.items[id]
	var detail dto.GenerationJobDetail
	if ok {
		detail = dto.GenerationJobDetail{Job: item.job, Result: item.result}
	}
	s.mu.RUnlock()
	if !ok || s.expired(detail.Job) {
		return dto.GenerationJobDetail{}, false
	}
	return detail, true
}

func (s *GenerationJobStore) lookup(id string) (storedGenerationJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return storedGenerationJob{}, false
	}
	return *item, true
}

func (s *GenerationJobStore) update(id string, fn func(item *storedGenerationJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return
	}
	fn(item)
	item.job.UpdatedAt = s.now().UTC()
}

func (s *GenerationJobStore) expired(job models.GenerationJob) bool {
	finished := job.Status == models.GenerationJobSucceeded || job.Status == models.GenerationJobFailed
	return finished && s.now().Sub(job.UpdatedAt) > s.ttl
}

func (s *GenerationJobStore) purgeLocked() {
	for id, item := range s.items {
		if s.expired(item.job) {
			delete(s.items, id)
		}
	}
}

// GenerationJobService accepts asynchronous generation requests.
type GenerationJobService struct {
	store     *GenerationJobStore
	queue     generationDispatcher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGenerationJobService constructs the service.
func NewGenerationJobService(store *GenerationJobStore, queue generationDispatcher, validate *validator.Validate, logger *zap.Logger) *GenerationJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewGenerationJobStore(0)
	}
	return &GenerationJobService{store: store, queue: queue, validator: validate, logger: logger}
}

// Submit records a QUEUED job and hands it to the scope-keyed queue.
// The scope is authorised up front so a forbidden request is never queued.
func (s *GenerationJobService) Submit(ctx context.Context, req dto.GenerateTimetableRequest, requester *models.JWTClaims) (*dto.SubmitGenerationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	if err := authorizeScope(requester, req.DepartmentID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job := models.GenerationJob{
		ID:           uuid.NewString(),
		DepartmentID: req.DepartmentID,
		Semester:     req.Semester,
		Status:       models.GenerationJobQueued,
		RequestedBy:  requester.UserID,
		EnqueuedAt:   now,
		UpdatedAt:    now,
	}
	reqID := requestid.FromContext(ctx)
	s.store.save(job, req, *requester, reqID)

	if err := s.queue.Enqueue(jobs.Job{
		ID:      job.ID,
		Key:     ScopeKey(req.DepartmentID, req.Semester),
		Type:    GenerationJobType,
		Payload: req,
	}); err != nil {
		msg := "failed to enqueue job"
		s.store.update(job.ID, func(item *storedGenerationJob) {
			item.job.Status = models.GenerationJobFailed
			item.job.Error = &msg
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}

	s.logger.Info("generation job queued",
		zap.String("job_id", job.ID),
		zap.String("request_id", reqID),
		zap.Int64("department_id", req.DepartmentID),
		zap.Int("semester", req.Semester),
	)
	return &dto.SubmitGenerationResponse{JobID: job.ID, Status: job.Status}, nil
}

// Get returns the job state and, once finished, its result.
func (s *GenerationJobService) Get(ctx context.Context, id string) (*dto.GenerationJobDetail, error) {
	detail, ok := s.store.get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found or expired")
	}
	return &detail, nil
}

// GenerationWorker runs queued generation jobs.
type GenerationWorker struct {
	store  *GenerationJobStore
	runner generationRunner
	logger *zap.Logger
}

// NewGenerationWorker constructs a worker.
func NewGenerationWorker(store *GenerationJobStore, runner generationRunner, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationWorker{store: store, runner: runner, logger: logger}
}

// Handle processes a queue job. Client errors finish the job as FAILED without a retry.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	item, ok := w.store.lookup(job.ID)
	if !ok {
		w.logger.Warn("generation job vanished before processing", zap.String("job_id", job.ID))
		return nil
	}
	if item.requestID != "" {
		ctx = requestid.WithContext(ctx, item.requestID)
	}
	w.store.update(job.ID, func(item *storedGenerationJob) {
		item.job.Status = models.GenerationJobRunning
		item.job.Attempts = job.Attempt + 1
	})

	requester := item.requester
	result, err := w.runner.RunGeneration(ctx, item.request, &requester)
	if err != nil {
		if appErrors.IsClientError(err) {
			w.fail(job.ID, err)
			return nil
		}
		return err
	}

	timetableID := result.Timetable.ID
	w.store.update(job.ID, func(item *storedGenerationJob) {
		item.job.Status = models.GenerationJobSucceeded
		item.job.TimetableID = &timetableID
		item.job.Error = nil
		item.result = result
	})
	return nil
}

// OnFailure marks a job FAILED once the queue has given up on it.
func (w *GenerationWorker) OnFailure(job jobs.Job, err error) {
	w.fail(job.ID, err)
}

func (w *GenerationWorker) fail(id string, err error) {
	msg := err.Error()
	w.store.update(id, func(item *storedGenerationJob) {
		item.job.Status = models.GenerationJobFailed
		item.job.Error = &msg
	})
	w.logger.Warn("generation job failed", zap.String("job_id", id), zap.Error(err))
}
