package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-student-api/internal/domain"
	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
	"github.com/noah-isme/sis-student-api/pkg/export"
)

var rosterHeaders = []string{"Student ID", "Name", "Gender", "Status", "Class", "Enrolled"}

// RosterExportService renders the student roster as CSV or PDF.
type RosterExportService struct {
	repo   domain.StudentRepository
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	limit  int
	logger *zap.Logger
}

// NewRosterExportService constructs the export service.
func NewRosterExportService(repo domain.StudentRepository, limit int, logger *zap.Logger) *RosterExportService {
	if limit <= 0 {
		limit = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterExportService{
		repo:   repo,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		limit:  limit,
		logger: logger,
	}
}

// Export renders the roster in the requested format and returns the payload
// with its content type.
func (s *RosterExportService) Export(ctx context.Context, format string) ([]byte, string, error) {
	students, err := s.repo.FindAll(ctx, 1, s.limit)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{Headers: rosterHeaders, Rows: make([]map[string]string, 0, len(students))}
	for _, student := range students {
		classID := ""
		if student.ClassID != nil {
			classID = *student.ClassID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student ID": student.StudentID,
			"Name":       student.Name,
			"Gender":     student.Gender,
			"Status":     student.Status.String(),
			"Class":      classID,
			"Enrolled":   student.EnrollmentDate.Format("2006-01-02"),
		})
	}

	switch format {
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv roster")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Student Roster")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf roster")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}
}
