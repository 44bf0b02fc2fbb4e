package restapi

import (
	"errors"

	"github.com/gin-gonic/gin"

	"clipforge/pkg/errno"
)

// envelope is the JSON shape every endpoint (success or failure) returns.
type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a 2xx body wrapping data. status defaults to 200 when 0.
func Success(c *gin.Context, status int, data interface{}) {
	if status == 0 {
		status = 200
	}
	c.JSON(status, envelope{Code: status, Data: data})
}

// Failed classifies err into an errno.Kind (InternalError if unclassified)
// and writes the matching status code and message.
func Failed(c *gin.Context, err error) {
	var e *errno.Errno
	if !errors.As(err, &e) {
		e = errno.New(errno.KindInternalError, err.Error())
	}
	status := e.Kind.HTTPStatus()
	c.JSON(status, envelope{Code: status, Message: e.Message})
}
