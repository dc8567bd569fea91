package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techmailbox/shipmail/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports the mailbox session state.
func Status(session interfaces.IMAPSession) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"session": session.State().String(),
		})
	}
}
