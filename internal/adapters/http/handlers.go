package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/avolkov/chatter/internal/core"
	"github.com/avolkov/chatter/internal/domain"
)

type readRequest struct {
	ReadBy      domain.UserID `json:"readBy"`
	RecipientID domain.UserID `json:"recipientId"`
}

// handleMessagesRead is the REST layer's read-receipt side effect: relay a
// messages_read envelope to the conversation's other participant. Delivery
// is best-effort, the persisted read state is the authoritative answer.
func (a *API) handleMessagesRead(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad conversation id"})
		return
	}
	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReadBy <= 0 || req.RecipientID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid body"})
		return
	}

	delivered := a.Registry.Send(req.RecipientID, core.NewMessagesRead(conversationID, req.ReadBy))
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

func (a *API) handlePresence(c *gin.Context) {
	uid, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || uid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad user id"})
		return
	}
	resp := gin.H{"userId": uid, "isOnline": a.Registry.Online(domain.UserID(uid))}
	if lastSeen, ok := a.Store.LastSeen(domain.UserID(uid)); ok && !lastSeen.IsZero() {
		resp["lastSeen"] = lastSeen
	}
	c.JSON(http.StatusOK, resp)
}

type contactRequest struct {
	UserID    domain.UserID `json:"userId"`
	ContactID domain.UserID `json:"contactId"`
}

func (a *API) handleAddContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 || req.ContactID <= 0 || req.UserID == req.ContactID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid body"})
		return
	}
	a.Store.AddContact(req.UserID, req.ContactID)
	c.Status(http.StatusNoContent)
}
