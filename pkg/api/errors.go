package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/services"
)

// writeError maps service and fault errors to an HTTP error response of the
// form {"error": ..., "code": ...}.
func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.JSON(status, body)
}

// errorResponse picks the status and JSON body for an error.
func errorResponse(err error) (int, gin.H) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, gin.H{"error": validErr.Error()}
	}
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, jobstore.ErrNotFound) {
		return http.StatusNotFound, gin.H{"error": "resource not found"}
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, gin.H{"error": "resource already exists"}
	}

	var fault *faults.Error
	if errors.As(err, &fault) {
		body := gin.H{"error": fault.Err.Error()}
		if fault.Code != "" {
			body["code"] = fault.Code
		}
		switch fault.Kind {
		case faults.KindValidation:
			return http.StatusBadRequest, body
		case faults.KindIntegrity:
			return http.StatusConflict, body
		case faults.KindSemantic:
			return http.StatusUnprocessableEntity, body
		case faults.KindTransient:
			return http.StatusServiceUnavailable, body
		}
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, gin.H{"error": "internal server error"}
}
