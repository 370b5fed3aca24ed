// Package handlers contains the HTTP handlers of the docketing API.  Handlers
// bind and validate request shapes, delegate to the application services, and
// translate application errors into HTTP responses.  No business logic lives
// here.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// errorBody is the uniform error payload.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// pageBody wraps a list response with its total count and page position.
type pageBody struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// respondError writes err as JSON with the status its error code maps to.
// Unknown (non-AppError) errors surface as 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	body := errorBody{Code: string(code), Message: "internal error"}
	if appErr, ok := errors.AsAppError(err); ok {
		body.Message = appErr.Message
	}
	c.AbortWithStatusJSON(code.HTTPStatus(), gin.H{"error": body})
}

// respondBadRequest wraps a binding failure in the common invalid-parameter
// code so all clients see the same error shape.
func respondBadRequest(c *gin.Context, err error) {
	respondError(c, errors.Wrap(err, errors.CodeInvalidParam, "invalid request"))
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func respondPage(c *gin.Context, items interface{}, total int64, p common.Pagination) {
	c.JSON(http.StatusOK, pageBody{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize})
}

// invalidQuery builds the error for an unparseable query parameter.
func invalidQuery(name, value string) error {
	return errors.Newf(errors.CodeInvalidParam, "invalid %s %q", name, value)
}

// pathID parses the named int64 path parameter.
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf(errors.CodeInvalidParam, "invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

// pagination reads page/page_size query parameters, clamped by Validate.
func pagination(c *gin.Context) common.Pagination {
	p := common.Pagination{}
	if v, err := strconv.Atoi(c.Query("page")); err == nil {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil {
		p.PageSize = v
	}
	p.Validate()
	return p
}
