package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// keepAliveInterval is how often an idle event stream sends a comment
const keepAliveInterval = 15 * time.Second

// handleEvents streams operation events via SSE. The first event lists the
// running operations so late subscribers know what is in flight.
// @Summary      Operation event stream
// @Description  Server-sent events: started, line, overwrite, progress and finished. EventSource clients pass the token as ?token=.
// @Tags         Operations
// @Produce      text/event-stream
// @Success      200  {string}  string  "event stream"
// @Router       /v1/events [get]
func (a *API) handleEvents(c *gin.Context) {
	events, cancel := a.broadcaster.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	active, _ := json.Marshal(ActiveResponse{Operations: a.controller.Active()})
	c.Stream(func(w io.Writer) bool {
		fmt.Fprintf(w, "event: active\ndata: %s\n\n", active)
		return false
	})

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(e)
			if err != nil {
				log.Warn("Failed to encode event", "error", err)
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
