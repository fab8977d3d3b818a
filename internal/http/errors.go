package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"task-manager/internal/service"
)

type apiError struct {
	status int
	code   string
}

// writeError maps service errors onto status codes and stable error codes.
// Anything unrecognised is reported as a bare 500 and recorded on the context
// for the request logger.
func writeError(c *gin.Context, err error) {
	var e apiError
	msg := err.Error()

	switch {
	case errors.Is(err, service.ErrDuplicateEmail):
		e = apiError{http.StatusBadRequest, "DUPLICATE_EMAIL"}
	case errors.Is(err, service.ErrDuplicateUsername):
		e = apiError{http.StatusBadRequest, "DUPLICATE_USERNAME"}
	case errors.Is(err, service.ErrInvalidInput):
		e = apiError{http.StatusBadRequest, "VALIDATION_ERROR"}
	case errors.Is(err, service.ErrInvalidCredentials):
		e = apiError{http.StatusUnauthorized, "INVALID_CREDENTIALS"}
	case errors.Is(err, service.ErrInvalidToken):
		e = apiError{http.StatusUnauthorized, "INVALID_TOKEN"}
	case errors.Is(err, service.ErrWrongTokenType):
		e = apiError{http.StatusUnauthorized, "WRONG_TOKEN_TYPE"}
	case errors.Is(err, service.ErrUnknownSubject):
		e = apiError{http.StatusUnauthorized, "UNKNOWN_SUBJECT"}
	case errors.Is(err, service.ErrTaskNotFound):
		e = apiError{http.StatusNotFound, "NOT_FOUND"}
	default:
		_ = c.Error(err)
		e = apiError{http.StatusInternalServerError, "INTERNAL_ERROR"}
		msg = "internal server error"
	}

	if e.status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.JSON(e.status, gin.H{"error": msg, "error_code": e.code})
}

func validationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_code": "VALIDATION_ERROR"})
}
