package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response helpers for consistent API responses.

// Envelope is the standard shape every management API endpoint replies
// with: Data set on success, Error set on failure, never both.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Page wraps one page of a list endpoint's results alongside the total
// count, nested under Envelope.Data.
type Page struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Total  int         `json:"total"`
}

// RespondSuccess sends a 200 with data wrapped in the success envelope.
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// RespondCreated sends a 201 with data wrapped in the success envelope.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// RespondError sends status with message wrapped in the failure envelope.
func RespondError(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Success: false, Error: message})
}

// RespondBadRequest sends a 400 Bad Request error.
func RespondBadRequest(c *gin.Context, message string) { RespondError(c, http.StatusBadRequest, message) }

// RespondNotFound sends a 404 Not Found error.
func RespondNotFound(c *gin.Context, message string) { RespondError(c, http.StatusNotFound, message) }

// RespondInternalError sends a 500 Internal Server Error.
func RespondInternalError(c *gin.Context, message string) {
	if message == "" {
		message = "an internal error occurred"
	}
	RespondError(c, http.StatusInternalServerError, message)
}
