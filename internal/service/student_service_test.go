package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-student-api/internal/domain"
	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
)

type mockStudentRepo struct {
	students    map[string]*domain.Student
	parents     map[string][]domain.ParentInfo
	deleted     []string
	nextID      int
	saveErr     error
	parentLoads int
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{
		students: make(map[string]*domain.Student),
		parents:  make(map[string][]domain.ParentInfo),
	}
}

func (m *mockStudentRepo) Save(ctx context.Context, student *domain.Student) (*domain.Student, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if student.ID == "" {
		m.nextID++
		student.ID = fmt.Sprintf("id-%d", m.nextID)
	}
	copied := *student
	copied.ClearEvents()
	m.students[student.ID] = &copied
	return student, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*domain.Student, error) {
	if s, ok := m.students[id]; ok && !s.Deleted {
		copied := *s
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockStudentRepo) FindByStudentID(ctx context.Context, studentID string) (*domain.Student, error) {
	for _, s := range m.students {
		if s.StudentID == studentID && !s.Deleted {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStudentRepo) FindAll(ctx context.Context, page, size int) ([]domain.Student, error) {
	out := make([]domain.Student, 0, len(m.students))
	for _, s := range m.students {
		if !s.Deleted {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) FindByClassID(ctx context.Context, classID string) ([]domain.Student, error) {
	var out []domain.Student
	for _, s := range m.students {
		if s.ClassID != nil && *s.ClassID == classID && !s.Deleted {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) FindByNameLike(ctx context.Context, pattern string) ([]domain.Student, error) {
	fragment := strings.Trim(pattern, "%")
	var out []domain.Student
	for _, s := range m.students {
		if !s.Deleted && strings.Contains(s.Name, fragment) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) ExistsByStudentID(ctx context.Context, studentID string) (bool, error) {
	_, err := m.FindByStudentID(ctx, studentID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *mockStudentRepo) Count(ctx context.Context) (int64, error) {
	all, _ := m.FindAll(ctx, 1, 100)
	return int64(len(all)), nil
}

func (m *mockStudentRepo) DeleteByID(ctx context.Context, id string) error {
	if s, ok := m.students[id]; ok {
		s.Deleted = true
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStudentRepo) SaveParent(ctx context.Context, studentID string, parent domain.ParentInfo) error {
	if parent.IsPrimary {
		existing := m.parents[studentID]
		for i := range existing {
			existing[i].IsPrimary = false
		}
	}
	m.parents[studentID] = append(m.parents[studentID], parent)
	return nil
}

func (m *mockStudentRepo) FindParentsByStudentID(ctx context.Context, studentID string) ([]domain.ParentInfo, error) {
	m.parentLoads++
	out := make([]domain.ParentInfo, len(m.parents[studentID]))
	copy(out, m.parents[studentID])
	return out, nil
}

type recordingPublisher struct {
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func newTestService(repo *mockStudentRepo, pub *recordingPublisher) *StudentService {
	return NewStudentService(repo, pub, nil, nil, validator.New(), zap.NewNop(), 0)
}

func createRequest(studentID string) CreateStudentRequest {
	return CreateStudentRequest{
		StudentID:   studentID,
		Name:        "Alice Tan",
		DateOfBirth: time.Date(2010, 3, 14, 0, 0, 0, 0, time.UTC),
		Gender:      "F",
		Email:       "alice@example.com",
		Phone:       "0812",
		Address:     "Jakarta",
	}
}

func TestStudentServiceCreate(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, domain.StatusActive, student.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventTypeStudentCreated, pub.events[0].EventType())
	assert.Equal(t, "S100", pub.events[0].AggregateID())

	// Buffer drained after publishing.
	assert.Empty(t, student.UncommittedEvents())
}

func TestStudentServiceCreateDuplicateStudentID(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	_, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), createRequest("S100"))
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Len(t, pub.events, 1)
}

func TestStudentServiceCreateInvalidPayload(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	req := createRequest("S100")
	req.Email = "not-an-email"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, pub.events)
}

func TestStudentServiceCreateDoesNotPublishOnSaveFailure(t *testing.T) {
	repo := newMockStudentRepo()
	repo.saveErr = errors.New("db down")
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	_, err := svc.Create(context.Background(), createRequest("S100"))
	require.Error(t, err)
	assert.Empty(t, pub.events)
}

func TestStudentServiceUpdateStatus(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), student.ID, UpdateStatusRequest{Status: "WITHDRAWN", Reason: "moved away"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWithdrawn, updated.Status)

	require.Len(t, pub.events, 2)
	changed, ok := pub.events[1].(domain.StudentStatusChanged)
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, changed.OldStatus)
	assert.Equal(t, domain.StatusWithdrawn, changed.NewStatus)
	assert.Equal(t, "moved away", changed.Reason)
}

func TestStudentServiceUpdateStatusIllegalEdge(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), student.ID, UpdateStatusRequest{Status: "WITHDRAWN"})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), student.ID, UpdateStatusRequest{Status: "ACTIVE"})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

	// State in storage is untouched by the rejected transition.
	persisted, err := svc.Get(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWithdrawn, persisted.Status)
}

func TestStudentServiceUpdateStatusUnknownStatus(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), student.ID, UpdateStatusRequest{Status: "EXPELLED"})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestStudentServiceUpdateStatusNotFound(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	_, err := svc.UpdateStatus(context.Background(), "missing", UpdateStatusRequest{Status: "INACTIVE"})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestStudentServiceAddParent(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	_, err = svc.AddParent(context.Background(), student.ID, AddParentRequest{
		Name: "A", Relationship: "father", Phone: "1", IsPrimary: true,
	})
	require.NoError(t, err)

	_, err = svc.AddParent(context.Background(), student.ID, AddParentRequest{
		Name: "B", Relationship: "mother", Phone: "2", IsPrimary: true,
	})
	require.NoError(t, err)

	parents, err := repo.FindParentsByStudentID(context.Background(), student.ID)
	require.NoError(t, err)
	require.Len(t, parents, 2)

	primaries := 0
	for _, p := range parents {
		if p.IsPrimary {
			primaries++
			assert.Equal(t, "B", p.Name)
		}
	}
	assert.Equal(t, 1, primaries)

	require.Len(t, pub.events, 3)
	assert.Equal(t, domain.EventTypeParentAdded, pub.events[1].EventType())
	assert.Equal(t, domain.EventTypeParentAdded, pub.events[2].EventType())
}

func TestStudentServiceAddParentDemotesAgainstStoredGuardians(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	// Seed a primary guardian directly in storage. The service must attach
	// it to the aggregate before the demotion logic runs; otherwise the
	// behavior operates on an empty list.
	require.NoError(t, repo.SaveParent(context.Background(), student.ID, domain.ParentInfo{
		Name: "A", Relationship: "father", Phone: "1", IsPrimary: true,
	}))
	repo.parentLoads = 0

	_, err = svc.AddParent(context.Background(), student.ID, AddParentRequest{
		Name: "B", Relationship: "mother", Phone: "2", IsPrimary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.parentLoads)

	parents := repo.parents[student.ID]
	require.Len(t, parents, 2)
	primaries := 0
	for _, p := range parents {
		if p.IsPrimary {
			primaries++
			assert.Equal(t, "B", p.Name)
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestStudentServiceAddParentMissingRequiredField(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	_, err = svc.AddParent(context.Background(), student.ID, AddParentRequest{Name: "A"})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestStudentServiceAssignClass(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	updated, err := svc.AssignClass(context.Background(), student.ID, AssignClassRequest{ClassID: "C7"})
	require.NoError(t, err)
	require.NotNil(t, updated.ClassID)
	assert.Equal(t, "C7", *updated.ClassID)

	byClass, err := svc.ListByClass(context.Background(), "C7")
	require.NoError(t, err)
	assert.Len(t, byClass, 1)
}

func TestStudentServiceSearch(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	_, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	other := createRequest("S101")
	other.Name = "Budi Santoso"
	_, err = svc.Create(context.Background(), other)
	require.NoError(t, err)

	results, err := svc.Search(context.Background(), "Alice")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Alice Tan", results[0].Name)
}

func TestStudentServiceUpdateProfile(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), student.ID, UpdateStudentRequest{
		Name: "Alice Chen", Email: "chen@example.com", Phone: "0813", Address: "Bandung",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Chen", updated.Name)
	assert.Equal(t, "chen@example.com", updated.Contact.Email)
	assert.Equal(t, "S100", updated.StudentID)
}

func TestStudentServiceDelete(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), student.ID))
	assert.Contains(t, repo.deleted, student.ID)

	_, err = svc.Get(context.Background(), student.ID)
	require.Error(t, err)
}

func TestStudentServicePublishFailureDoesNotFailUseCase(t *testing.T) {
	repo := newMockStudentRepo()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(repo, pub)

	student, err := svc.Create(context.Background(), createRequest("S100"))
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
}
