package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes payload with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Accepted writes a 202 for work handed to the send queue.
func Accepted(c *gin.Context, payload any) {
	JSON(c, http.StatusAccepted, payload)
}

// NoStore writes a 200 that shared caches must not keep. Use it for bodies
// carrying signed artifact links.
func NoStore(c *gin.Context, payload any) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	OK(c, payload)
}
