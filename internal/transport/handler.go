package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go-label-inspector/internal/config"
	apperrors "go-label-inspector/internal/errors"
	"go-label-inspector/internal/logger"
	"go-label-inspector/internal/service"
	"go-label-inspector/pkg/models"
	"go-label-inspector/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

// MetricsSource exposes detection counters
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

type detectForm struct {
	ImageURL           string `form:"image_url"`
	FoodType           string `form:"Foodtype" binding:"required"`
	PackageFoodType    string `form:"PackageFoodType" binding:"required"`
	SingleOrMulti      string `form:"SingleOrMulti" binding:"required"`
	PackageSize        string `form:"PackageSize" binding:"required"`
	DetectionTime      string `form:"DetectionTime"`
	SpecialRequirement string `form:"SpecialRequirement"`
}

func NewHandler(svc service.DetectionService, metrics MetricsSource, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		cors(cfg.AllowedOrigins),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	urls := validation.NewURLValidator()
	content := validation.NewContentValidator(cfg.MaxRequestBodySize)

	// Configure routes
	r.GET("/health", healthCheck(svc))
	r.GET("/metrics", metricsSnapshot(metrics))

	api := r.Group("/api")
	api.POST("/detect", detectLabel(svc, urls, content, cfg))
	api.GET("/results/:id", getResult(svc))
	api.GET("/workflow/check", checkWorkflow(svc, cfg))

	return r
}

func detectLabel(svc service.DetectionService, urls *validation.URLValidator, content *validation.ContentValidator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing label detection request")

		var form detectForm
		if err := c.ShouldBind(&form); err != nil {
			if isBodyTooLarge(err) {
				respondError(c, http.StatusRequestEntityTooLarge, "request body too large", err)
				return
			}
			respondError(c, http.StatusBadRequest, "invalid request format",
				apperrors.NewValidationError("missing or invalid form fields", err))
			return
		}

		in := service.DetectionInput{
			FoodType:           form.FoodType,
			PackageFoodType:    form.PackageFoodType,
			SingleOrMulti:      form.SingleOrMulti,
			PackageSize:        form.PackageSize,
			DetectionTime:      form.DetectionTime,
			SpecialRequirement: form.SpecialRequirement,
			ClientIP:           c.ClientIP(),
			CorrelationID:      c.GetHeader("X-Request-ID"),
		}

		data, fileName, err := readUpload(c)
		if err != nil {
			if isBodyTooLarge(err) {
				respondError(c, http.StatusRequestEntityTooLarge, "request body too large", err)
				return
			}
			respondError(c, http.StatusBadRequest, "failed to read uploaded file",
				apperrors.NewValidationError("unreadable upload", err))
			return
		}

		switch {
		case data != nil:
			detected, err := content.Validate(data)
			if err != nil {
				respondError(c, apperrors.GetStatusCode(err), "invalid label file", err)
				return
			}
			in.ImageData = data
			in.FileName = withExtension(fileName, detected.Extension)
			in.ContentType = detected.MimeType
		case form.ImageURL != "":
			if err := urls.ValidateImageURL(form.ImageURL); err != nil {
				respondError(c, apperrors.GetStatusCode(err), "invalid image URL", err)
				return
			}
			in.ImageURL = strings.TrimSpace(form.ImageURL)
		default:
			respondError(c, http.StatusBadRequest, "invalid request format",
				apperrors.NewValidationError("a file or image_url is required", nil))
			return
		}

		resp, err := svc.RunDetection(ctx, in)
		if err != nil {
			if resp == nil {
				respondError(c, apperrors.GetStatusCode(err), "detection failed", err)
				return
			}
			logger.WithError(err).WithFields(logrus.Fields{
				"detection_id": resp.DetectionID,
				"attempts":     resp.Attempts,
				"ip":           c.ClientIP(),
			}).Error("Label detection failed")
			c.JSON(apperrors.GetStatusCode(err), resp)
			return
		}

		logger.WithFields(logrus.Fields{
			"detection_id":       resp.DetectionID,
			"food_type":          in.FoodType,
			"transfer_method":    resp.TransferMethod,
			"partial":            resp.Partial,
			"split_method":       resp.SplitMethod,
			"processing_time_ms": resp.ProcessingTimeMs,
		}).Info("Label detection completed successfully")

		c.JSON(http.StatusOK, resp)
	}
}

// readUpload returns the bytes of the "file" part, or nil when none was sent
func readUpload(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(fh.Filename), nil
}

// withExtension replaces the client's extension with the sniffed one
func withExtension(name, ext string) string {
	if name == "" || name == "." || name == "/" {
		name = "label"
	}
	if ext == "" {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func getResult(svc service.DetectionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := svc.GetDetection(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to load detection", err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func checkWorkflow(svc service.DetectionService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Workflow.ConnectTimeout+cfg.Workflow.ReadTimeout)
		defer cancel()

		resp, err := svc.CheckWorkflow(ctx)
		if err != nil {
			logger.WithError(err).Warn("Workflow service check failed")
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func metricsSnapshot(metrics MetricsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.GetMetrics())
	}
}

func healthCheck(svc service.DetectionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		resp := models.HealthResponse{
			Status:     "available",
			Version:    version,
			Time:       time.Now().UTC().Format(time.RFC3339),
			Repository: "ok",
		}
		if err := svc.Ready(ctx); err != nil {
			logger.WithError(err).Warn("Health check found repository unavailable")
			resp.Status = "degraded"
			resp.Repository = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Type = string(appErr.Type)
		resp.Details = appErr.Details
	}
	c.AbortWithStatusJSON(code, resp)
}
