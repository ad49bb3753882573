package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/errs"
)

type APIResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func Success(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func Fail(c *gin.Context, statusCode int, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// Error classifies err into a status code. Unexpected errors are attached to
// the context for the request logger and their text is not sent.
func Error(c *gin.Context, err error, message string) {
	var verr *errs.ValidationError
	switch {
	case errors.As(err, &verr):
		resp := APIResponse{Status: "error", Message: message, Error: verr.Error()}
		if verr.Field != "" {
			resp.Fields = map[string]string{verr.Field: verr.Message}
		}
		c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, errs.ErrNotFound):
		Fail(c, http.StatusNotFound, err, message)
	case errors.Is(err, errs.ErrForbidden):
		Fail(c, http.StatusForbidden, err, message)
	default:
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, nil, message)
	}
}
