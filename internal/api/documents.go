package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/user/inkpilot/internal/types"
)

// documentBody mirrors the remote store wire format.
type documentBody struct {
	ID      types.ArtifactID `json:"id"`
	OwnerID string           `json:"owner_id"`
	Title   string           `json:"title"`
	Content json.RawMessage  `json:"content"`
}

func (s *Server) handleDocumentExists(c *gin.Context) {
	ok, err := s.deps.Documents.Exists(c.Request.Context(), types.ArtifactID(c.Param("id")))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleDocumentGet(c *gin.Context) {
	doc, err := s.deps.Documents.Get(c.Request.Context(), types.ArtifactID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDocumentCreate(c *gin.Context) {
	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	if err := s.deps.Documents.Create(c.Request.Context(), body.ID, body.OwnerID, body.Title, body.Content); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": body.ID})
}

func (s *Server) handleDocumentUpdate(c *gin.Context) {
	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	id := types.ArtifactID(c.Param("id"))
	if err := s.deps.Documents.Update(c.Request.Context(), id, body.Content, body.OwnerID, body.Title); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}
