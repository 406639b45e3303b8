package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MessageResponse is the body of every non-data answer: errors, create and rate confirmations.
type MessageResponse struct {
	Message string `json:"message"`
}

// Message writes {"message": msg} with the given status.
func Message(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, MessageResponse{Message: msg})
}

// Fail reports a data-access error as 500 with the error's text and logs it.
func Fail(ctx *gin.Context, err error) {
	Sugar.Errorw("request failed",
		"method", ctx.Request.Method,
		"path", ctx.FullPath(),
		"request_id", ctx.GetString(RequestIDKey),
		"error", err,
	)
	_ = ctx.Error(err)
	Message(ctx, http.StatusInternalServerError, err.Error())
}
