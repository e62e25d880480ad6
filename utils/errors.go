package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"multitenant-rag-platform/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, models.CodeBadRequest, message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, models.CodeAgentNotFound, message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, models.CodeStorage, message, details)
}

// StatusForCode maps a taxonomy code to its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case models.CodeBadRequest:
		return http.StatusBadRequest
	case models.CodeAgentNotFound:
		return http.StatusNotFound
	case models.CodeEmbeddingShape, models.CodeOCRFailed, models.CodeLLMUnavailable:
		return http.StatusBadGateway
	default:
		// TEMPLATE_ERROR, STORAGE_ERROR and anything unclassified
		return http.StatusInternalServerError
	}
}

// RespondWithDomainError classifies err and sends the mapped response.
func RespondWithDomainError(c *gin.Context, err error) {
	code := models.ErrorCode(err)
	RespondWithError(c, StatusForCode(code), code, err.Error(), nil)
}
