package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/groupchat/internal/adapters/postgres"
	"github.com/dkeye/groupchat/internal/domain"
)

func (a *API) getPresence(c *gin.Context) {
	uid, err := domain.ParseUserID(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, connected, err := a.Orch.Presence.Lookup(c.Request.Context(), uid)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("user", string(uid)).Msg("presence lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":   rec.UserID,
		"status":    rec.Status,
		"last_seen": rec.LastSeen,
		"connected": connected,
	})
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// pageParams reads limit and offset from the query string.
func pageParams(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > maxPageSize {
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, false
		}
	}
	return limit, offset, true
}

// groupMessages returns one page of history, oldest first.
func (a *API) groupMessages(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit or offset"})
		return
	}
	msgs, err := a.Store.GroupMessages(c.Request.Context(), domain.RoomID(c.Param("groupId")), limit, offset)
	if err != nil {
		a.storeError(c, err, "group messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// groupPresence lists the stored presence of every member, plus whether
// this node holds a live connection for them.
func (a *API) groupPresence(c *gin.Context) {
	members, err := a.Store.GroupPresence(c.Request.Context(), domain.RoomID(c.Param("groupId")))
	if err != nil {
		a.storeError(c, err, "group presence")
		return
	}
	if members == nil {
		members = []domain.MemberPresence{}
	}
	for i := range members {
		members[i].Connected = a.Orch.Registry.IsOnline(members[i].UserID)
	}
	c.JSON(http.StatusOK, members)
}

type sendMessageRequest struct {
	Content  string `json:"content"`
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// sendMessage persists first; clients then emit send_message on the socket
// with the stored record. Push delivery runs in the background.
func (a *API) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	in := domain.NewMessage{
		GroupID:  domain.RoomID(c.Param("groupId")),
		UserID:   currentUser(c),
		Content:  req.Content,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileSize: req.FileSize,
	}
	if err := in.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := a.Store.SaveMessage(c.Request.Context(), in)
	if err != nil {
		a.storeError(c, err, "save message")
		return
	}
	a.Notifier.NotifyMessage(msg)
	c.JSON(http.StatusCreated, gin.H{"message": "Message sent", "data": msg})
}

func (a *API) markRead(c *gin.Context) {
	n, err := a.Store.MarkRead(c.Request.Context(), domain.MessageID(c.Param("messageId")), currentUser(c))
	if err != nil {
		a.storeError(c, err, "mark read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message marked as read", "readCount": n})
}

type reactionRequest struct {
	ReactionType string `json:"reactionType"`
}

func (a *API) addReaction(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReactionType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrEmptyReactionType.Error()})
		return
	}
	r, err := a.Store.AddReaction(c.Request.Context(), domain.MessageID(c.Param("messageId")), currentUser(c), req.ReactionType)
	if err != nil {
		a.storeError(c, err, "add reaction")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Reaction added", "data": r})
}

func (a *API) removeReaction(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReactionType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrEmptyReactionType.Error()})
		return
	}
	r, err := a.Store.RemoveReaction(c.Request.Context(), domain.MessageID(c.Param("messageId")), currentUser(c), req.ReactionType)
	if err != nil {
		a.storeError(c, err, "remove reaction")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reaction removed", "data": r})
}

func (a *API) savePushToken(c *gin.Context) {
	var req struct {
		PushToken string `json:"pushToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PushToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrPushTokenEmpty.Error()})
		return
	}
	if err := a.Store.SavePushToken(c.Request.Context(), currentUser(c), req.PushToken); err != nil {
		a.storeError(c, err, "save push token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Push token saved"})
}

func (a *API) storeError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, postgres.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrEmptyReactionType),
		errors.Is(err, domain.ErrPushTokenEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Msg("store failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
