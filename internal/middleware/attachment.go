package middleware

import "github.com/gin-gonic/gin"

// AttachmentHeaders makes browsers download stored uploads instead of
// rendering them on the API origin.
func AttachmentHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Content-Disposition", "attachment")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "sandbox")
		c.Next()
	}
}
