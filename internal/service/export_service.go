package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/learning-center-api/internal/models"
	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
	"github.com/noah-isme/learning-center-api/pkg/export"
)

const (
	TranscriptFormatCSV = "csv"
	TranscriptFormatPDF = "pdf"
)

type transcriptEnrollments interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
}

type transcriptCourses interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
}

type transcriptLedger interface {
	ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.CompletedLesson, error)
}

// ExportResult is a rendered transcript ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders a student's transcript of enrollments.
type ExportService struct {
	enrollments transcriptEnrollments
	courses     transcriptCourses
	lessons     transcriptLedger
	exporters   map[string]export.Exporter
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(enrollments transcriptEnrollments, courses transcriptCourses, lessons transcriptLedger, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		enrollments: enrollments,
		courses:     courses,
		lessons:     lessons,
		exporters: map[string]export.Exporter{
			TranscriptFormatCSV: export.NewCSVExporter(),
			TranscriptFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

var transcriptColumns = []export.Column{
	{Key: "course_id", Label: "Course ID", Weight: 1},
	{Key: "course_title", Label: "Course", Weight: 3},
	{Key: "status", Label: "Status", Weight: 1.4},
	{Key: "progress", Label: "Progress %", Weight: 1.2},
	{Key: "lessons_completed", Label: "Lessons done", Weight: 1.3},
	{Key: "total_lessons", Label: "Lessons", Weight: 1},
	{Key: "enrolled_at", Label: "Enrolled", Weight: 1.4},
	{Key: "completed_at", Label: "Completed", Weight: 1.4},
}

// StudentTranscript renders every enrollment of the student in the given format.
func (s *ExportService) StudentTranscript(ctx context.Context, studentID int64, format string) (*ExportResult, error) {
	if format == "" {
		format = TranscriptFormatCSV
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Validation("unsupported transcript format %q", format)
	}

	dataset, err := s.buildDataset(ctx, studentID)
	if err != nil {
		return nil, err
	}
	payload, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}

	s.logger.Debug("transcript rendered", zap.Int64("student_id", studentID), zap.String("format", format), zap.Int("rows", len(dataset.Rows)))
	return &ExportResult{
		Filename:    fmt.Sprintf("transcript_%d_%s.%s", studentID, s.now().UTC().Format("20060102_150405"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Content:     payload,
	}, nil
}

func (s *ExportService) buildDataset(ctx context.Context, studentID int64) (export.Dataset, error) {
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: studentID, PageSize: 100})
	if err != nil {
		return export.Dataset{}, appErrors.Infrastructure(err, "failed to list enrollments")
	}

	dataset := export.Dataset{
		Title:   "Transcript",
		Notes:   []string{fmt.Sprintf("Student %d", studentID), "Generated " + s.now().UTC().Format(time.RFC3339)},
		Columns: transcriptColumns,
		Rows:    make([]map[string]string, 0, len(enrollments)),
	}
	for _, e := range enrollments {
		row := map[string]string{
			"course_id":   strconv.FormatInt(e.CourseID, 10),
			"status":      string(e.Status),
			"progress":    strconv.Itoa(e.Progress.Percentage()),
			"enrolled_at": e.EnrolledAt.UTC().Format("2006-01-02"),
		}
		if e.CompletedAt != nil {
			row["completed_at"] = e.CompletedAt.UTC().Format("2006-01-02")
		}
		course, err := s.courses.FindByID(ctx, e.CourseID)
		if err != nil {
			return export.Dataset{}, storageError(err, "course not found", "load course")
		}
		row["course_title"] = course.Title
		row["total_lessons"] = strconv.Itoa(course.TotalLessons)

		completed, err := s.lessons.ListByEnrollment(ctx, e.ID)
		if err != nil {
			return export.Dataset{}, appErrors.Infrastructure(err, "failed to list completed lessons")
		}
		row["lessons_completed"] = strconv.Itoa(len(completed))
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset, nil
}
