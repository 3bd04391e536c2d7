// Package response writes the JSON envelope every API endpoint returns.
package response

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-scheduler/internal/models"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

// Envelope is the body of every JSON response. Exactly one of Data and Error is set.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes data with optional pagination. Meta maps are merged left to right.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Pagination: pagination, Meta: mergeMeta(meta)})
}

// Accepted writes data with 202 for work continuing in the background.
func Accepted(c *gin.Context, data interface{}) {
	JSON(c, http.StatusAccepted, data, nil)
}

// Error records err on the gin context and writes its typed form. Untyped errors surface as
// a generic internal error.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	_ = c.Error(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// Attachment streams data as a download named filename.
func Attachment(c *gin.Context, filename, contentType string, data []byte) {
	noStore(c)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, contentType, data)
}

// NoContent writes 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func mergeMeta(meta []map[string]interface{}) map[string]interface{} {
	var merged map[string]interface{}
	for _, m := range meta {
		for k, v := range m {
			if merged == nil {
				merged = make(map[string]interface{}, len(m))
			}
			merged[k] = v
		}
	}
	return merged
}
