// Package handlers implements the REST endpoints on top of the application
// services.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/pcfp/internal/interfaces/http/middleware"
	"github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// parsePagination reads page and page_size, falling back to defaults on
// missing or unparsable values.
func parsePagination(c *gin.Context) common.Pagination {
	p := common.Pagination{Page: 1, PageSize: defaultPageSize}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= maxPageSize {
		p.PageSize = v
	}
	return p
}

func writeData[T any](c *gin.Context, status int, data T) {
	resp := common.NewSuccessResponse(data)
	resp.RequestID = middleware.GetRequestID(c)
	c.JSON(status, resp)
}

func writePage[T any](c *gin.Context, data T, page common.Pagination) {
	resp := common.NewSuccessResponse(data)
	resp.RequestID = middleware.GetRequestID(c)
	resp.Pagination = &page
	c.JSON(http.StatusOK, resp)
}

// writeAppError maps err to its HTTP status. Errors without an application
// code and server-side failures are masked.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	message := err.Error()

	var ae *errors.AppError
	if errors.As(err, &ae) {
		message = ae.Message
		if ae.Detail != "" {
			message += ": " + ae.Detail
		}
	}
	if code == errors.CodeUnknown || status >= http.StatusInternalServerError {
		if code == errors.CodeUnknown {
			code = errors.ErrCodeInternal
		}
		message = errors.ErrorCodeMessage[code]
		if message == "" {
			message = "internal server error"
		}
	}

	_ = c.Error(err)
	resp := common.NewErrorResponse(string(code), message)
	resp.RequestID = middleware.GetRequestID(c)
	c.AbortWithStatusJSON(status, resp)
}

// badRequest reports a malformed request that never reached a service.
func badRequest(c *gin.Context, message string) {
	writeAppError(c, errors.InvalidParam(message))
}
