package api

import (
	"encoding/json"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/user/inkpilot/internal/edit"
	"github.com/user/inkpilot/internal/gateway"
	"github.com/user/inkpilot/internal/types"
)

type turnResponse struct {
	ConversationID types.ConversationID  `json:"conversation_id"`
	Result         types.ResultEnvelope `json:"result"`
}

func (s *Server) handleTurn(c *gin.Context) {
	var turn gateway.Turn
	if err := c.ShouldBindJSON(&turn); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	result, err := s.deps.Gateway.Do(c.Request.Context(), &turn)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, turnResponse{ConversationID: turn.ConversationID, Result: types.Envelope(result)})
}

type modificationRequest struct {
	Instruction      string          `json:"instruction"`
	TargetBlockIDs   []string        `json:"target_block_ids"`
	SelectedMarkdown string          `json:"selected_markdown"`
	DocumentMarkdown string          `json:"document_markdown"`
	Model            string          `json:"model"`
}

func (s *Server) handleModification(c *gin.Context) {
	var req modificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	targets := types.BlockIDs(req.TargetBlockIDs...)
	if strings.TrimSpace(req.Instruction) == "" || len(targets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instruction and target_block_ids are required"})
		return
	}
	model := req.Model
	if model == "" {
		model = s.deps.DefaultModel
	}
	patch := s.deps.Modifier.ApplyModification(c.Request.Context(), edit.ModificationRequest{
		Instruction:      req.Instruction,
		TargetBlockIDs:   targets,
		SelectedMarkdown: req.SelectedMarkdown,
		DocumentMarkdown: req.DocumentMarkdown,
		ModelID:          model,
	})
	if err := edit.Validate(patch, nil); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": types.Envelope(patch), "failed": edit.IsErrorMarker(patch.NewMarkdown)})
}

type saveContentRequest struct {
	Title   string          `json:"title"`
	OwnerID string          `json:"owner_id"`
	Content json.RawMessage `json:"content"`
}

func (s *Server) handleSaveContent(c *gin.Context) {
	var req saveContentRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	id := types.ArtifactID(c.Param("id"))
	snap, err := s.deps.Sync.Save(c.Request.Context(), id, req.Content, req.Title, req.OwnerID)
	if err != nil {
		fail(c, err)
		return
	}
	st, _ := s.deps.Sync.Status(id)
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "pending_sync": snap.PendingSync, "sync": st})
}

func (s *Server) handleSnapshots(c *gin.Context) {
	snaps, err := s.deps.Snapshots.List(c.Request.Context(), types.ArtifactID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if snaps == nil {
		snaps = []*types.ContentSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	st, ok := s.deps.Sync.Status(types.ArtifactID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact has no sync state"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleSyncArtifact(c *gin.Context) {
	id := types.ArtifactID(c.Param("id"))
	if err := s.deps.Sync.SyncArtifact(c.Request.Context(), id); err != nil {
		st, _ := s.deps.Sync.Status(id)
		c.JSON(syncFailureStatus(err), gin.H{"error": err.Error(), "sync": st})
		return
	}
	st, _ := s.deps.Sync.Status(id)
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleSyncStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": s.deps.Sync.Online(), "artifacts": s.deps.Sync.Statuses()})
}

func (s *Server) handleSweep(c *gin.Context) {
	if err := s.deps.Sync.Sweep(c.Request.Context()); err != nil {
		c.JSON(syncFailureStatus(err), gin.H{"error": err.Error(), "artifacts": s.deps.Sync.Statuses()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": s.deps.Sync.Online(), "artifacts": s.deps.Sync.Statuses()})
}

// syncFailureStatus reports remote failures as 502 rather than 500.
func syncFailureStatus(err error) int {
	if st := statusFor(err); st != http.StatusInternalServerError {
		return st
	}
	return http.StatusBadGateway
}

func (s *Server) handleConnectivity(c *gin.Context) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Online == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online is required"})
		return
	}
	err := s.deps.Sync.SetOnline(c.Request.Context(), *body.Online)
	resp := gin.H{"online": s.deps.Sync.Online()}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleConversations(c *gin.Context) {
	convs, err := s.deps.Conversations.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) handleMessages(c *gin.Context) {
	id := types.ConversationID(c.Param("id"))
	if _, err := s.deps.Conversations.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	msgs, err := s.deps.Messages.Tail(c.Request.Context(), id, limit)
	if err != nil {
		fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	ref := string(types.NewRequestID()) + ext
	if err := c.SaveUploadedFile(fh, filepath.Join(s.deps.UploadsDir, ref)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"image_ref": ref})
}

// handleMedia serves uploads behind signed URLs.
func (s *Server) handleMedia(c *gin.Context) {
	ref := strings.TrimLeft(path.Clean("/"+c.Param("ref")), "/")
	if s.deps.Media == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media disabled"})
		return
	}
	if err := s.deps.Media.Verify(ref, c.Query("expires"), c.Query("sig")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.File(filepath.Join(s.deps.UploadsDir, filepath.FromSlash(ref)))
}
