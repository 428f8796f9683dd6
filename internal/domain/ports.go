package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repository adapters when no student matches the
// given identity. Adapters translate their storage-specific sentinel (e.g.
// sql.ErrNoRows) into this error so the application layer stays
// storage-agnostic.
var ErrNotFound = errors.New("student not found")

// StudentRepository is the persistence port for the Student aggregate.
// Implementations must be safe for concurrent use and must uphold the
// primary-guardian invariant at the storage layer: at most one parent row
// with is_primary per student at any observation point.
type StudentRepository interface {
	// Save inserts the aggregate when it has no surrogate id yet, otherwise
	// updates it. The returned aggregate has the id populated.
	Save(ctx context.Context, student *Student) (*Student, error)

	FindByID(ctx context.Context, id string) (*Student, error)
	FindByStudentID(ctx context.Context, studentID string) (*Student, error)
	FindAll(ctx context.Context, page, size int) ([]Student, error)
	FindByClassID(ctx context.Context, classID string) ([]Student, error)
	FindByNameLike(ctx context.Context, pattern string) ([]Student, error)

	ExistsByStudentID(ctx context.Context, studentID string) (bool, error)
	Count(ctx context.Context) (int64, error)

	// DeleteByID marks the student deleted; rows are never physically removed.
	DeleteByID(ctx context.Context, id string) error

	// SaveParent persists one guardian entry. When the entry is primary, all
	// existing primaries for the student are demoted in the same transaction.
	SaveParent(ctx context.Context, studentID string, parent ParentInfo) error
	FindParentsByStudentID(ctx context.Context, studentID string) ([]ParentInfo, error)
}

// EventPublisher delivers domain events to downstream consumers. Publishing
// is fire-and-forget: failures must not roll back committed state.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
