package common

import (
	"github.com/gin-gonic/gin"
)

// OK writes a plain JSON success body. History routes return their payload
// as-is, so no envelope is added here.
func OK(c *gin.Context, data any) {
	c.JSON(200, data)
}

// Fail writes the client-facing error body {"error": msg}.
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.JSON(httpStatus, gin.H{"error": msg})
}
