package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learning-center-api/internal/dto"
	"github.com/noah-isme/learning-center-api/internal/service"
	"github.com/noah-isme/learning-center-api/pkg/response"
)

type transcriptService interface {
	StudentTranscript(ctx context.Context, studentID int64, format string) (*service.ExportResult, error)
}

// TranscriptHandler streams transcripts.
type TranscriptHandler struct {
	exports transcriptService
}

// NewTranscriptHandler constructs the handler.
func NewTranscriptHandler(exports transcriptService) *TranscriptHandler {
	return &TranscriptHandler{exports: exports}
}

// Download godoc
// @Summary Download my transcript
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /enrollments/me/transcript [get]
func (h *TranscriptHandler) Download(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var query dto.TranscriptQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, validationError("invalid query parameters"))
		return
	}
	result, err := h.exports.StudentTranscript(c.Request.Context(), p.UserID, strings.ToLower(query.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Content)
}
