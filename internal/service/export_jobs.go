package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
	"github.com/noah-isme/sis-student-api/pkg/jobs"
	"github.com/noah-isme/sis-student-api/pkg/storage"
)

// ExportJobStatus tracks a background export through its lifecycle.
type ExportJobStatus string

const (
	ExportJobQueued     ExportJobStatus = "QUEUED"
	ExportJobProcessing ExportJobStatus = "PROCESSING"
	ExportJobFinished   ExportJobStatus = "FINISHED"
	ExportJobFailed     ExportJobStatus = "FAILED"
)

// ExportJob is the client-visible state of one roster export.
type ExportJob struct {
	ID            string          `json:"id"`
	Format        string          `json:"format"`
	Status        ExportJobStatus `json:"status"`
	DownloadToken string          `json:"download_token,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// ExportDownload is a resolved download token ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportJobServiceConfig tunes the worker pool and artifact retention.
type ExportJobServiceConfig struct {
	Workers         int
	MaxRetries      int
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportJobService runs roster exports in the background. Large PDF renders
// would otherwise block the request; clients poll the job and fetch the
// artifact through a signed download token. Job state is in memory only,
// a restart forgets unfinished jobs and cleanup reclaims their files.
type ExportJobService struct {
	roster *RosterExportService
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	queue  *jobs.Queue
	logger *zap.Logger
	cfg    ExportJobServiceConfig

	mu   sync.RWMutex
	byID map[string]*ExportJob
}

// NewExportJobService constructs the service and its queue. Call Start
// before accepting jobs.
func NewExportJobService(
	roster *RosterExportService,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
	cfg ExportJobServiceConfig,
) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	s := &ExportJobService{
		roster: roster,
		store:  store,
		signer: signer,
		logger: logger,
		cfg:    cfg,
		byID:   make(map[string]*ExportJob),
	}
	s.queue = jobs.NewQueue("roster-export", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start boots the workers and the artifact cleanup loop.
func (s *ExportJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if s.cfg.CleanupInterval > 0 {
		go s.cleanupLoop(ctx)
	}
}

// Stop drains the workers.
func (s *ExportJobService) Stop() {
	s.queue.Stop()
}

// CreateJob validates the format and enqueues a roster export.
func (s *ExportJobService) CreateJob(ctx context.Context, format string) (*ExportJob, error) {
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}

	job := &ExportJob{
		ID:        uuid.NewString(),
		Format:    format,
		Status:    ExportJobQueued,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.byID[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "roster-export"}); err != nil {
		s.fail(job.ID, "failed to enqueue export")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return s.snapshot(job.ID), nil
}

// GetJob returns the current state of one job.
func (s *ExportJobService) GetJob(id string) (*ExportJob, error) {
	job := s.snapshot(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return job, nil
}

// ResolveDownload checks a signed token and opens the stored artifact.
func (s *ExportJobService) ResolveDownload(token string) (*ExportDownload, error) {
	jobID, path, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	s.mu.RLock()
	job, ok := s.byID[jobID]
	var status ExportJobStatus
	var issued, format string
	if ok {
		status = job.Status
		issued = job.DownloadToken
		format = job.Format
	}
	s.mu.RUnlock()

	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if status != ExportJobFinished || issued != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}

	file, err := s.store.Open(path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	contentType := "text/csv"
	if format == "pdf" {
		contentType = "application/pdf"
	}
	return &ExportDownload{File: file, Filename: filepath.Base(path), ContentType: contentType}, nil
}

func (s *ExportJobService) process(ctx context.Context, job jobs.Job) error {
	s.transition(job.ID, ExportJobProcessing)

	rec := s.snapshot(job.ID)
	if rec == nil {
		return fmt.Errorf("export job %s not found", job.ID)
	}

	payload, _, err := s.roster.Export(ctx, rec.Format)
	if err != nil {
		if job.Attempt >= s.cfg.MaxRetries {
			s.fail(job.ID, err.Error())
		} else {
			s.transition(job.ID, ExportJobQueued)
		}
		return err
	}

	name := fmt.Sprintf("%s/students.%s", job.ID, rec.Format)
	if _, err := s.store.Save(name, payload); err != nil {
		s.fail(job.ID, "failed to store export")
		return err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, name)
	if err != nil {
		s.fail(job.ID, "failed to sign download token")
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if j, ok := s.byID[job.ID]; ok {
		j.Status = ExportJobFinished
		j.DownloadToken = token
		j.ExpiresAt = &expiresAt
		j.FinishedAt = &now
		j.Error = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *ExportJobService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.store.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
			}
			s.dropExpiredJobs()
		}
	}
}

func (s *ExportJobService) dropExpiredJobs() {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.byID {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.byID, id)
		}
	}
}

func (s *ExportJobService) transition(id string, status ExportJobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.byID[id]; ok {
		job.Status = status
	}
}

func (s *ExportJobService) fail(id, msg string) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.byID[id]; ok {
		job.Status = ExportJobFailed
		job.Error = msg
		job.FinishedAt = &now
	}
}

func (s *ExportJobService) snapshot(id string) *ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.byID[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}
