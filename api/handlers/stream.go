package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/techmailbox/shipmail/dto"
	"github.com/techmailbox/shipmail/services/notify"
)

// Stream serves the presentation-layer notification feed over SSE. The
// subscription lives for the lifetime of the request.
func Stream(notifier *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ch := notifier.Subscribe()
		defer notifier.Unsubscribe(id)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			select {
			case notification, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(eventName(notification), notification)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

func eventName(n dto.Notification) string {
	if n.Type == "" {
		return dto.NotificationLog
	}
	return n.Type
}
