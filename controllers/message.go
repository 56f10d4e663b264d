package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/penelope/inbox/apperr"
	dbpkg "github.com/penelope/inbox/db"
	"github.com/penelope/inbox/models"
	"github.com/penelope/inbox/outbound"

	"github.com/gin-gonic/gin"
)

type MessageController struct {
	Pipeline *outbound.Pipeline
}

func NewMessageController(pipeline *outbound.Pipeline) *MessageController {
	return &MessageController{Pipeline: pipeline}
}

type sendMessageRequest struct {
	Body      *string `json:"body"`
	MediaRef  *string `json:"media_ref"`
	MediaType *string `json:"media_type"`
}

// POST /conversations/:id/messages — spec.md §4.5: only the agent the
// conversation is currently ASSIGNED to may send into it.
func (mc *MessageController) Send(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	conversationID, ok := ParamString(c, "id")
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	var conv models.Conversation
	if err := db.Where("id = ? AND organization_id = ?", conversationID, identity.OrganizationID).First(&conv).Error; err != nil {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}
	if conv.Status != models.CONVERSATION_STATUS_ASSIGNED {
		RespondError(c, "conversation is "+conv.Status+", not assigned", http.StatusConflict)
		return
	}
	if conv.AssignedAgentID == nil || *conv.AssignedAgentID != identity.AgentID {
		RespondError(c, "conversation is not assigned to you", http.StatusForbidden)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}

	message, err := mc.Pipeline.Enqueue(c.Request.Context(), conversationID, identity.AgentID, req.Body, req.MediaRef, req.MediaType)
	if err != nil {
		if appErr, ok := apperr.As(err); ok {
			RespondError(c, appErr.Message, apperr.Status(appErr.Kind))
			return
		}
		RespondError(c, "failed to send message", http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, message)
}
