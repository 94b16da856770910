package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/broadcast-engine/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError maps application error codes onto HTTP statuses so
// handlers don't repeat the switch.
func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperrors.Code(err) {
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrBadRequest:
		status = http.StatusBadRequest
	case apperrors.ErrConflict:
		status = http.StatusConflict
	case apperrors.ErrUnauthorized:
		status = http.StatusUnauthorized
	}
	c.JSON(status, NewErrorResponse(err.Error()))
}
