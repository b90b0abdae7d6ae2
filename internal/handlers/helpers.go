package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/services"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/validator"
)

// bindJSON decodes and validates the request body into dst.
func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.ErrBadRequest.WithInternal(err)
	}
	if err := validator.ValidateStruct(dst); err != nil {
		return apperrors.ErrBadRequest.WithMessage(err.Error())
	}
	return nil
}

// listOptions reads the shared pagination and filter query parameters.
func listOptions(c *gin.Context) services.ListOptions {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	opts := services.ListOptions{
		Page:    page,
		PerPage: perPage,
		Name:    c.Query("name"),
	}
	if raw := c.Query("status"); raw != "" {
		if status, err := strconv.Atoi(raw); err == nil {
			opts.Status = &status
		}
	}
	return opts
}

// splitIDs interprets a path parameter as one id or a comma-separated batch.
func splitIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}
