package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// WriteObject 统一JSON响应
func WriteObject(c *gin.Context, obj interface{}, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, obj)
}

// WriteNotFound 404响应
func WriteNotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"error": msg})
}
