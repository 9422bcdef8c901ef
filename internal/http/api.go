package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"csv-uploader/internal/domain"
	"csv-uploader/internal/repository"
	"csv-uploader/internal/service"
	"csv-uploader/internal/storage"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	runs    service.RunService
	auth    service.AuthService
	storage storage.Service
	bucket  string
	prefix  string
	dir     string
}

func NewHandler(runs service.RunService, auth service.AuthService, store storage.Service, bucket, prefix, dir string) *Handler {
	return &Handler{
		runs:    runs,
		auth:    auth,
		storage: store,
		bucket:  bucket,
		prefix:  prefix,
		dir:     dir,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/login", h.login)

		authed := api.Group("", h.requireToken())
		authed.POST("/runs", h.createRun)
		authed.GET("/runs", h.listRuns)
		authed.GET("/runs/:id", h.getRun)
		authed.GET("/objects", h.listObjects)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if _, err := h.auth.Verify(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expires, err := h.auth.Login(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAuthNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
	})
}

func (h *Handler) createRun(c *gin.Context) {
	// a client that disconnects must not abort uploads already under way
	run, err := h.runs.Execute(context.WithoutCancel(c.Request.Context()), h.dir)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, runToResponse(*run))
		return
	}

	c.JSON(http.StatusCreated, runToResponse(*run))
}

func (h *Handler) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := make([]RunResponse, len(runs))
	for i := range runs {
		resp[i] = runToResponse(runs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getRun(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runToResponse(*run))
}

func (h *Handler) listObjects(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage service not configured"})
		return
	}

	prefix := c.DefaultQuery("prefix", h.prefix)
	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, prefix)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrHistoryDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

type RunResponse struct {
	ID           string               `json:"id"`
	Dir          string               `json:"dir"`
	Bucket       string               `json:"bucket"`
	KeyPrefix    string               `json:"key_prefix"`
	Status       domain.RunStatus     `json:"status"`
	Uploaded     int                  `json:"uploaded"`
	Failed       int                  `json:"failed"`
	ErrorMessage string               `json:"error_message,omitempty"`
	StartedAt    string               `json:"started_at"`
	FinishedAt   *string              `json:"finished_at,omitempty"`
	Files        []UploadFileResponse `json:"files,omitempty"`
}

type UploadFileResponse struct {
	Name         string              `json:"name"`
	Size         int64               `json:"size"`
	Key          string              `json:"key"`
	Location     string              `json:"location,omitempty"`
	Status       domain.ResultStatus `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	UploadedAt   *string             `json:"uploaded_at,omitempty"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func runToResponse(run domain.Run) RunResponse {
	resp := RunResponse{
		ID:           run.ID,
		Dir:          run.Dir,
		Bucket:       run.Bucket,
		KeyPrefix:    run.KeyPrefix,
		Status:       run.Status,
		Uploaded:     run.Uploaded,
		Failed:       run.Failed,
		ErrorMessage: run.ErrorMessage,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
	}
	if run.FinishedAt != nil {
		v := run.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &v
	}

	if len(run.Files) > 0 {
		resp.Files = make([]UploadFileResponse, len(run.Files))
	}
	for i, f := range run.Files {
		resp.Files[i] = UploadFileResponse{
			Name:         f.Name,
			Size:         f.Size,
			Key:          f.Key,
			Location:     f.Location,
			Status:       f.Status,
			ErrorMessage: f.ErrorMessage,
		}
		if f.UploadedAt != nil {
			v := f.UploadedAt.Format(time.RFC3339)
			resp.Files[i].UploadedAt = &v
		}
	}
	return resp
}
