package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-student-api/internal/domain"
)

// studentRow mirrors the students table. Contact info is flattened into
// scalar columns; the converter rebuilds the value object.
type studentRow struct {
	ID             string     `db:"id"`
	StudentID      string     `db:"student_id"`
	Name           string     `db:"name"`
	DateOfBirth    time.Time  `db:"date_of_birth"`
	Gender         string     `db:"gender"`
	Email          string     `db:"email"`
	Phone          string     `db:"phone"`
	Address        string     `db:"address"`
	ClassID        *string    `db:"class_id"`
	Status         string     `db:"status"`
	EnrollmentDate time.Time  `db:"enrollment_date"`
	GraduationDate *time.Time `db:"graduation_date"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	Deleted        bool       `db:"deleted"`
}

type parentRow struct {
	ID           string    `db:"id"`
	StudentRowID string    `db:"student_id"`
	Name         string    `db:"name"`
	Relationship string    `db:"relationship"`
	Phone        string    `db:"phone"`
	Email        string    `db:"email"`
	Occupation   string    `db:"occupation"`
	WorkPlace    string    `db:"work_place"`
	IsPrimary    bool      `db:"is_primary"`
	CreatedAt    time.Time `db:"created_at"`
}

const studentColumns = `id, student_id, name, date_of_birth, gender, email, phone, address,
        class_id, status, enrollment_date, graduation_date, created_at, updated_at, deleted`

// PostgresStudentRepository is the PostgreSQL adapter for the student
// repository port.
type PostgresStudentRepository struct {
	db *sqlx.DB
}

// NewPostgresStudentRepository constructs the adapter.
func NewPostgresStudentRepository(db *sqlx.DB) *PostgresStudentRepository {
	return &PostgresStudentRepository{db: db}
}

// Save inserts the aggregate when it has no surrogate id yet, otherwise
// updates the existing row.
func (r *PostgresStudentRepository) Save(ctx context.Context, student *domain.Student) (*domain.Student, error) {
	now := time.Now().UTC()
	student.UpdatedAt = now

	if student.ID == "" {
		student.ID = uuid.NewString()
		student.CreatedAt = now
		const query = `INSERT INTO students (id, student_id, name, date_of_birth, gender, email, phone, address,
            class_id, status, enrollment_date, graduation_date, created_at, updated_at, deleted)
            VALUES (:id, :student_id, :name, :date_of_birth, :gender, :email, :phone, :address,
            :class_id, :status, :enrollment_date, :graduation_date, :created_at, :updated_at, :deleted)`
		if _, err := r.db.NamedExecContext(ctx, query, toRow(student)); err != nil {
			return nil, fmt.Errorf("insert student: %w", err)
		}
		return student, nil
	}

	const query = `UPDATE students SET name = :name, gender = :gender, date_of_birth = :date_of_birth,
        email = :email, phone = :phone, address = :address, class_id = :class_id, status = :status,
        graduation_date = :graduation_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, toRow(student)); err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	return student, nil
}

// FindByID fetches a student by surrogate id, excluding soft-deleted rows.
func (r *PostgresStudentRepository) FindByID(ctx context.Context, id string) (*domain.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1 AND deleted = false", studentColumns)
	var row studentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return toDomain(row), nil
}

// FindByStudentID fetches a student by business identifier.
func (r *PostgresStudentRepository) FindByStudentID(ctx context.Context, studentID string) (*domain.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE student_id = $1 AND deleted = false", studentColumns)
	var row studentRow
	if err := r.db.GetContext(ctx, &row, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find student by student id: %w", err)
	}
	return toDomain(row), nil
}

// FindAll returns one page of students ordered by creation time.
func (r *PostgresStudentRepository) FindAll(ctx context.Context, page, size int) ([]domain.Student, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 1000 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM students WHERE deleted = false ORDER BY created_at DESC LIMIT $1 OFFSET $2", studentColumns)
	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, query, size, offset); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return toDomainList(rows), nil
}

// FindByClassID returns all students assigned to a class.
func (r *PostgresStudentRepository) FindByClassID(ctx context.Context, classID string) ([]domain.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE class_id = $1 AND deleted = false ORDER BY name", studentColumns)
	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list students by class: %w", err)
	}
	return toDomainList(rows), nil
}

// FindByNameLike returns students whose name matches the LIKE pattern.
func (r *PostgresStudentRepository) FindByNameLike(ctx context.Context, pattern string) ([]domain.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE name LIKE $1 AND deleted = false ORDER BY name", studentColumns)
	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, query, pattern); err != nil {
		return nil, fmt.Errorf("search students by name: %w", err)
	}
	return toDomainList(rows), nil
}

// ExistsByStudentID checks whether the business identifier is already taken.
func (r *PostgresStudentRepository) ExistsByStudentID(ctx context.Context, studentID string) (bool, error) {
	const query = "SELECT 1 FROM students WHERE student_id = $1 AND deleted = false LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check student id: %w", err)
	}
	return true, nil
}

// Count returns the number of non-deleted students.
func (r *PostgresStudentRepository) Count(ctx context.Context) (int64, error) {
	const query = "SELECT COUNT(*) FROM students WHERE deleted = false"
	var total int64
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// DeleteByID soft-deletes the student. The row is kept.
func (r *PostgresStudentRepository) DeleteByID(ctx context.Context, id string) error {
	const query = "UPDATE students SET deleted = true, updated_at = $2 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// SaveParent appends one guardian row. A primary entry demotes all existing
// primaries for the student inside the same transaction so the storage-level
// invariant matches the in-memory one. The student row is locked first:
// under READ COMMITTED the demote UPDATE alone locks nothing when no primary
// exists yet, so two concurrent primary inserts would otherwise both commit.
func (r *PostgresStudentRepository) SaveParent(ctx context.Context, studentID string, parent domain.ParentInfo) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save parent: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const lock = "SELECT id FROM students WHERE id = $1 FOR UPDATE"
	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, lock, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("lock student row: %w", err)
	}

	if parent.IsPrimary {
		const demote = "UPDATE student_parents SET is_primary = false WHERE student_id = $1 AND is_primary = true"
		if _, err := tx.ExecContext(ctx, demote, studentID); err != nil {
			return fmt.Errorf("demote primary parents: %w", err)
		}
	}

	const insert = `INSERT INTO student_parents (id, student_id, name, relationship, phone, email, occupation, work_place, is_primary, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, insert,
		uuid.NewString(), studentID, parent.Name, parent.Relationship, parent.Phone,
		parent.Email, parent.Occupation, parent.WorkPlace, parent.IsPrimary, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert parent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save parent: %w", err)
	}
	return nil
}

// FindParentsByStudentID returns the guardians in insertion order.
func (r *PostgresStudentRepository) FindParentsByStudentID(ctx context.Context, studentID string) ([]domain.ParentInfo, error) {
	const query = `SELECT id, student_id, name, relationship, phone, email, occupation, work_place, is_primary, created_at
        FROM student_parents WHERE student_id = $1 ORDER BY created_at`
	var rows []parentRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	parents := make([]domain.ParentInfo, 0, len(rows))
	for _, row := range rows {
		parents = append(parents, domain.ParentInfo{
			Name:         row.Name,
			Relationship: row.Relationship,
			Phone:        row.Phone,
			Email:        row.Email,
			Occupation:   row.Occupation,
			WorkPlace:    row.WorkPlace,
			IsPrimary:    row.IsPrimary,
		})
	}
	return parents, nil
}

func toRow(s *domain.Student) studentRow {
	return studentRow{
		ID:             s.ID,
		StudentID:      s.StudentID,
		Name:           s.Name,
		DateOfBirth:    s.DateOfBirth,
		Gender:         s.Gender,
		Email:          s.Contact.Email,
		Phone:          s.Contact.Phone,
		Address:        s.Contact.Address,
		ClassID:        s.ClassID,
		Status:         s.Status.String(),
		EnrollmentDate: s.EnrollmentDate,
		GraduationDate: s.GraduationDate,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		Deleted:        s.Deleted,
	}
}

func toDomain(row studentRow) *domain.Student {
	return &domain.Student{
		ID:             row.ID,
		StudentID:      row.StudentID,
		Name:           row.Name,
		DateOfBirth:    row.DateOfBirth,
		Gender:         row.Gender,
		Contact:        domain.NewContactInfo(row.Email, row.Phone, row.Address),
		ClassID:        row.ClassID,
		Status:         domain.Status(row.Status),
		EnrollmentDate: row.EnrollmentDate,
		GraduationDate: row.GraduationDate,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		Deleted:        row.Deleted,
	}
}

func toDomainList(rows []studentRow) []domain.Student {
	students := make([]domain.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, *toDomain(row))
	}
	return students
}
