package handler

import (
	"errors"
	"net/http"
	"strconv"

	"microcredit-gateway/internal/adapter/http/dto"
	"microcredit-gateway/pkg/apperror"
	"microcredit-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// bindJSON decodes and validates the body, writing the error response itself.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		response.Error(c, apperror.ErrPayloadTooLarge())
	case dto.ValidationFields(err) != nil:
		response.Error(c, apperror.ValidationFields(dto.ValidationFields(err)))
	default:
		response.Error(c, apperror.Validation("malformed JSON body"))
	}
	return false
}

// pathID parses a positive int64 route parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperror.ValidationFields(map[string]string{name: "must be a positive integer"}))
		return 0, false
	}
	return id, true
}
