package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-student-api/internal/domain"
	"github.com/noah-isme/sis-student-api/internal/repository"
	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
)

const studentCacheKeyPrefix = "student:detail:"

// CreateStudentRequest holds payload for registering a student.
type CreateStudentRequest struct {
	StudentID   string    `json:"student_id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	DateOfBirth time.Time `json:"date_of_birth" validate:"required"`
	Gender      string    `json:"gender" validate:"required"`
	Email       string    `json:"email" validate:"omitempty,email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
}

// UpdateStudentRequest holds payload for updating name and contact info.
type UpdateStudentRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// UpdateStatusRequest holds payload for a lifecycle transition.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
}

// AddParentRequest holds payload for registering a guardian.
type AddParentRequest struct {
	Name         string `json:"name" validate:"required"`
	Relationship string `json:"relationship" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Occupation   string `json:"occupation"`
	WorkPlace    string `json:"work_place"`
	IsPrimary    bool   `json:"is_primary"`
}

// AssignClassRequest holds payload for placing a student into a class.
type AssignClassRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// StudentService orchestrates the student use cases. Each mutating call
// loads the aggregate, invokes exactly one behavior method, persists through
// the repository port, then drains and publishes the buffered events.
type StudentService struct {
	repo      domain.StudentRepository
	publisher domain.EventPublisher
	cache     *repository.CacheRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewStudentService constructs the student service. Cache and metrics are
// optional; nil disables them.
func NewStudentService(
	repo domain.StudentRepository,
	publisher domain.EventPublisher,
	cache *repository.CacheRepository,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cacheTTL time.Duration,
) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &StudentService{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// Create registers a new student. The business identifier must be unused.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*domain.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	exists, err := s.repo.ExistsByStudentID(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student id already in use")
	}

	contact := domain.NewContactInfo(req.Email, req.Phone, req.Address)
	student := domain.NewStudent(req.StudentID, req.Name, req.DateOfBirth, req.Gender, contact)

	saved, err := s.repo.Save(ctx, student)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.publishEvents(ctx, student)
	return saved, nil
}

// Get returns one student with guardians attached.
func (s *StudentService) Get(ctx context.Context, id string) (*domain.Student, error) {
	if s.cache != nil {
		var cached domain.Student
		if err := s.cache.Get(ctx, studentCacheKeyPrefix+id, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	student, err := s.loadStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	parents, err := s.repo.FindParentsByStudentID(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parents")
	}
	student.Parents = parents

	if s.cache != nil {
		if err := s.cache.Set(ctx, studentCacheKeyPrefix+id, student, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache student", zap.String("id", id), zap.Error(err))
		}
	}
	return student, nil
}

// GetByStudentID returns one student looked up by business identifier.
func (s *StudentService) GetByStudentID(ctx context.Context, studentID string) (*domain.Student, error) {
	student, err := s.repo.FindByStudentID(ctx, studentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	parents, err := s.repo.FindParentsByStudentID(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parents")
	}
	student.Parents = parents
	return student, nil
}

// List returns one page of students plus the total count.
func (s *StudentService) List(ctx context.Context, page, size int) ([]domain.Student, int64, error) {
	students, err := s.repo.FindAll(ctx, page, size)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	return students, total, nil
}

// ListByClass returns all students assigned to one class.
func (s *StudentService) ListByClass(ctx context.Context, classID string) ([]domain.Student, error) {
	students, err := s.repo.FindByClassID(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students by class")
	}
	return students, nil
}

// Search returns students whose name contains the given fragment.
func (s *StudentService) Search(ctx context.Context, name string) ([]domain.Student, error) {
	students, err := s.repo.FindByNameLike(ctx, "%"+name+"%")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	return students, nil
}

// Update replaces the student's name and contact info.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*domain.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.loadStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	student.UpdateProfile(req.Name, domain.NewContactInfo(req.Email, req.Phone, req.Address))

	saved, err := s.repo.Save(ctx, student)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.publishEvents(ctx, student)
	s.invalidateCache(ctx, id)
	return saved, nil
}

// UpdateStatus moves the student along the lifecycle state machine. Illegal
// transitions surface unchanged from the aggregate.
func (s *StudentService) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*domain.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	newStatus, err := domain.ParseStatus(req.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown student status")
	}

	student, err := s.loadStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := student.UpdateStatus(newStatus, req.Reason); err != nil {
		return nil, err
	}

	saved, err := s.repo.Save(ctx, student)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
	}

	s.publishEvents(ctx, student)
	s.invalidateCache(ctx, id)
	return saved, nil
}

// AddParent registers a guardian for the student.
func (s *StudentService) AddParent(ctx context.Context, id string, req AddParentRequest) (*domain.ParentInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid parent payload")
	}

	student, err := s.loadStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	// Attach the stored guardians before invoking the behavior; demotion of
	// the current primary happens against the full list, not an empty one.
	parents, err := s.repo.FindParentsByStudentID(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parents")
	}
	student.Parents = parents

	parent := domain.ParentInfo{
		Name:         req.Name,
		Relationship: req.Relationship,
		Phone:        req.Phone,
		Email:        req.Email,
		Occupation:   req.Occupation,
		WorkPlace:    req.WorkPlace,
		IsPrimary:    req.IsPrimary,
	}
	student.AddParent(parent)

	if err := s.repo.SaveParent(ctx, student.ID, parent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save parent")
	}

	s.publishEvents(ctx, student)
	s.invalidateCache(ctx, id)
	return &parent, nil
}

// AssignClass places the student into a class.
func (s *StudentService) AssignClass(ctx context.Context, id string, req AssignClassRequest) (*domain.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	student, err := s.loadStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	student.AssignClass(req.ClassID)

	saved, err := s.repo.Save(ctx, student)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign class")
	}

	s.publishEvents(ctx, student)
	s.invalidateCache(ctx, id)
	return saved, nil
}

// Delete soft-deletes the student.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.loadStudent(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *StudentService) loadStudent(ctx context.Context, id string) (*domain.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// publishEvents drains the aggregate's buffer in recorded order. Publish
// failures are logged and never fail the use case; persistence has already
// committed by the time events go out.
func (s *StudentService) publishEvents(ctx context.Context, student *domain.Student) {
	for _, event := range student.UncommittedEvents() {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish domain event",
				zap.String("event_type", event.EventType()),
				zap.String("aggregate_id", event.AggregateID()),
				zap.Error(err),
			)
			continue
		}
		s.metrics.IncEventPublished(event.EventType())
	}
	student.ClearEvents()
}

func (s *StudentService) invalidateCache(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, studentCacheKeyPrefix+id); err != nil {
		s.logger.Warn("failed to invalidate student cache", zap.String("id", id), zap.Error(err))
	}
}
