package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/db"
	"github.com/applifix/backend/internal/models"
	"github.com/applifix/backend/internal/service"
)

// TaskStore is the slice of the database the handlers read and write.
type TaskStore interface {
	Ping(ctx context.Context) error
	CreateTask(ctx context.Context, req models.TaskCreateRequest) (string, error)
	ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	UpdateTaskStatus(ctx context.Context, id, status string) error
	GetLatestRun(ctx context.Context) (models.Run, error)
}

// Processor runs a recorded batch classification pass.
type Processor interface {
	Run(ctx context.Context, debug bool) (service.RunSummary, error)
}

type Handler struct {
	Store       TaskStore
	ChatService *service.ChatService
	Resolver    *classify.Resolver
	Processor   Processor
	Validator   *validator.Validate
	Logger      zerolog.Logger
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Classify pending tasks
// @Description Runs the classifier over tasks that were stored without a priority reason
// @Tags process
// @Produce json
// @Param debug query string false "Include samples of changed priorities"
// @Success 200 {object} service.RunSummary
// @Security AdminKey
// @Router /api/process [post]
func (h *Handler) Process(c *gin.Context) {
	debug := c.Query("debug")
	summary, err := h.Processor.Run(c.Request.Context(), debug == "1" || strings.EqualFold(debug, "true"))
	if err != nil {
		h.Logger.Error().Err(err).Msg("processing failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Processing failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Latest run
// @Tags runs
// @Produce json
// @Success 200 {object} models.Run
// @Failure 404 {object} map[string]any
// @Security AdminKey
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	result, err := h.Store.GetLatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load run", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary List tasks
// @Tags tasks
// @Produce json
// @Param status query string false "pending, in_progress, completed or cancelled"
// @Param priority query string false "low, medium, high or urgent"
// @Param source query string false "chat, telegram, admin or failed_call"
// @Param q query string false "Search in customer name, phone and problem"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]any
// @Security AdminKey
// @Router /api/tasks [get]
func (h *Handler) TasksList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	f := models.TaskFilter{
		Status:   strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Priority: strings.ToLower(strings.TrimSpace(c.Query("priority"))),
		Source:   strings.ToLower(strings.TrimSpace(c.Query("source"))),
		Query:    strings.TrimSpace(c.Query("q")),
		Limit:    limit,
		Offset:   offset,
	}

	items, err := h.Store.ListTasks(c.Request.Context(), f)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list tasks", err.Error())
		return
	}
	if items == nil {
		items = []models.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

// @Summary Task details
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} models.Task
// @Failure 404 {object} map[string]any
// @Security AdminKey
// @Router /api/tasks/{id} [get]
func (h *Handler) TaskDetails(c *gin.Context) {
	task, err := h.Store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Task not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get task", err.Error())
		return
	}
	c.JSON(http.StatusOK, task)
}

type TaskCreateBody struct {
	CustomerName       string         `json:"customer_name" validate:"required"`
	PhoneNumber        string         `json:"phone_number" validate:"required,phone"`
	ProblemDescription string         `json:"problem_description" validate:"required"`
	Priority           string         `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Location           *string        `json:"location,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// @Summary Create task
// @Description Creates a task on behalf of a customer. Without a priority the task waits for the batch classifier.
// @Tags tasks
// @Accept json
// @Produce json
// @Param body body TaskCreateBody true "Task"
// @Success 201 {object} models.TaskCreateResult
// @Failure 400 {object} map[string]any
// @Security AdminKey
// @Router /api/tasks [post]
func (h *Handler) TaskCreate(c *gin.Context) {
	var body TaskCreateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(body); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	req := models.TaskCreateRequest{
		CustomerName:       strings.TrimSpace(body.CustomerName),
		PhoneNumber:        body.PhoneNumber,
		ProblemDescription: strings.TrimSpace(body.ProblemDescription),
		Priority:           body.Priority,
		Status:             models.TaskStatusPending,
		Source:             models.SourceAdmin,
		Location:           body.Location,
		Metadata:           body.Metadata,
	}
	if req.Priority == "" {
		req.Priority = models.TaskPriorityMedium
	} else {
		req.AIPriorityReason = "Priority set by operator"
	}

	id, err := h.Store.CreateTask(c.Request.Context(), req)
	if err != nil {
		h.Logger.Error().Err(err).Msg("task create failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create task", err.Error())
		return
	}
	c.JSON(http.StatusCreated, models.TaskCreateResult{Success: true, TaskID: id})
}

type StatusUpdateBody struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
}

// @Summary Update task status
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param body body StatusUpdateBody true "Status"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Security AdminKey
// @Router /api/tasks/{id}/status [patch]
func (h *Handler) TaskStatus(c *gin.Context) {
	var body StatusUpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	body.Status = strings.ToLower(strings.TrimSpace(body.Status))
	if err := h.Validator.Struct(body); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	id := c.Param("id")
	if err := h.Store.UpdateTaskStatus(c.Request.Context(), id, body.Status); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Task not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update task", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "task_id": id, "task_status": body.Status})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
