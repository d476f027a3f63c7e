package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/user/inkpilot/internal/bus"
	"github.com/user/inkpilot/internal/types"
)

// handleEditorEvents streams bus commands to the editor as server-sent
// events. The event name is the command kind.
func (s *Server) handleEditorEvents(c *gin.Context) {
	cmds, stop := s.deps.Bus.Subscribe(32)
	defer stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case cmd, ok := <-cmds:
			if !ok {
				return false
			}
			c.SSEvent(string(cmd.Kind()), bus.Envelope{Kind: cmd.Kind(), Payload: cmd})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type documentContentResponse struct {
	RequestID types.RequestID `json:"requestId"`
	bus.DocumentContent
}

// handleDocumentContent answers a pending document content request.
func (s *Server) handleDocumentContent(c *gin.Context) {
	var body documentContentResponse
	if err := c.ShouldBindJSON(&body); err != nil || body.RequestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requestId is required"})
		return
	}
	if err := s.deps.Bus.Respond(body.RequestID, body.DocumentContent); err != nil {
		if errors.Is(err, bus.ErrUnknownRequest) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
