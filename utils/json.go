package utils

import "github.com/gin-gonic/gin"

// Fail writes an error JSON response in the {"detail": ...} shape.
func Fail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}

// AbortWithDetail writes an error JSON response and stops the handler chain.
func AbortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
