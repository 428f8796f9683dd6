package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-student-api/internal/service"
	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
	"github.com/noah-isme/sis-student-api/pkg/response"
)

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students   *service.StudentService
	exports    *service.RosterExportService
	exportJobs *service.ExportJobService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService, exports *service.RosterExportService, exportJobs *service.ExportJobService) *StudentHandler {
	return &StudentHandler{students: students, exports: exports, exportJobs: exportJobs}
}

// List returns students, either the paged roster or a filtered view when
// name or classId query parameters are present.
func (h *StudentHandler) List(c *gin.Context) {
	if classID := c.Query("classId"); classID != "" {
		students, err := h.students.ListByClass(c.Request.Context(), classID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, students, nil)
		return
	}

	if name := strings.TrimSpace(c.Query("name")); name != "" {
		students, err := h.students.Search(c.Request.Context(), name)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, students, nil)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	students, total, err := h.students.List(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	pagination := &response.Pagination{Page: page, PageSize: size, TotalCount: int(total)}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Export streams the roster as CSV or PDF.
func (h *StudentHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.exports.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=students.%s", format))
	c.Data(http.StatusOK, contentType, payload)
}

// CreateExportJob enqueues a background roster export.
func (h *StudentHandler) CreateExportJob(c *gin.Context) {
	var req struct {
		Format string `json:"format"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.exportJobs.CreateJob(c.Request.Context(), req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// GetExportJob returns the state of a background export.
func (h *StudentHandler) GetExportJob(c *gin.Context) {
	job, err := h.exportJobs.GetJob(c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// DownloadExport streams a finished export referenced by a signed token.
func (h *StudentHandler) DownloadExport(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.exportJobs.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", download.Filename))
	c.Header("Content-Type", download.ContentType)
	c.File(download.File.Name())
}

// Get returns one student by surrogate id.
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// GetByNumber returns one student by business identifier.
func (h *StudentHandler) GetByNumber(c *gin.Context) {
	student, err := h.students.GetByStudentID(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create registers a new student.
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update replaces the student's name and contact info.
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// UpdateStatus moves the student through the lifecycle state machine.
func (h *StudentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// AddParent registers a guardian for the student.
func (h *StudentHandler) AddParent(c *gin.Context) {
	var req service.AddParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	parent, err := h.students.AddParent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, parent)
}

// AssignClass places the student into a class.
func (h *StudentHandler) AssignClass(c *gin.Context) {
	var req service.AssignClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.AssignClass(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete soft-deletes the student.
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Register wires the student routes into the given group. Mutating routes
// must be guarded by the auth middleware passed in.
func (h *StudentHandler) Register(group *gin.RouterGroup, auth gin.HandlerFunc) {
	group.GET("/students", h.List)
	group.GET("/students/export", h.Export)
	group.GET("/students/export/download", h.DownloadExport)
	group.GET("/students/by-number/:studentId", h.GetByNumber)
	group.GET("/students/:id", h.Get)

	protected := group.Group("")
	protected.Use(auth)
	protected.POST("/students/export/jobs", h.CreateExportJob)
	protected.GET("/students/export/jobs/:jobId", h.GetExportJob)
	protected.POST("/students", h.Create)
	protected.PUT("/students/:id", h.Update)
	protected.PATCH("/students/:id/status", h.UpdateStatus)
	protected.POST("/students/:id/parents", h.AddParent)
	protected.PUT("/students/:id/class", h.AssignClass)
	protected.DELETE("/students/:id", h.Delete)
}
