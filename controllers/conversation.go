package controllers

import (
	"net/http"
	"strconv"

	"github.com/penelope/inbox/apperr"
	"github.com/penelope/inbox/authn"
	"github.com/penelope/inbox/conversation"
	dbpkg "github.com/penelope/inbox/db"
	"github.com/penelope/inbox/models"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

// ConversationController groups the handlers that drive the dispatch
// state machine, following crabstack's httpapi.server shape: one
// struct carrying its collaborators, methods as gin.HandlerFunc,
// instead of package-level functions reaching into gin.Context for
// everything.
type ConversationController struct {
	Service *conversation.Service
}

func NewConversationController(service *conversation.Service) *ConversationController {
	return &ConversationController{Service: service}
}

// GET /conversations?status=&channelId=&agentId=&search=&page=&limit=
// — per spec.md §6, joined with contact/channel/assignedAgent, ordered
// by lastMessageAt desc then createdAt desc.
func (cc *ConversationController) List(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	db := dbpkg.DBInstance(c)

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	page := 1
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	query := db.Model(&models.Conversation{}).Where("conversations.organization_id = ?", identity.OrganizationID)
	if status := c.Query("status"); status != "" {
		query = query.Where("conversations.status = ?", status)
	}
	if channelID := c.Query("channelId"); channelID != "" {
		query = query.Where("conversations.channel_id = ?", channelID)
	}
	if agentID := c.Query("agentId"); agentID != "" {
		query = query.Where("conversations.assigned_agent_id = ?", agentID)
	}
	if search := c.Query("search"); search != "" {
		query = query.Joins("JOIN contacts ON contacts.id = conversations.contact_id").
			Where("contacts.display_name LIKE ? OR contacts.provider_id LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var conversations []models.Conversation
	if err := query.Order("conversations.last_message_at desc, conversations.created_at desc").
		Offset((page - 1) * limit).Limit(limit).Find(&conversations).Error; err != nil {
		RespondError(c, "failed to list conversations", http.StatusInternalServerError)
		return
	}

	out := make([]models.ConversationWithRelations, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, hydrateConversation(db, conv))
	}
	RespondSuccess(c, gin.H{"data": out, "page": page, "limit": limit})
}

// hydrateConversation loads a Conversation's Contact, Channel and
// (if assigned) Agent rows, the same explicit-query shape Get uses
// rather than a gorm Preload graph (spec.md §9).
func hydrateConversation(db *gorm.DB, conv models.Conversation) models.ConversationWithRelations {
	out := models.ConversationWithRelations{Conversation: conv}
	db.Where("id = ?", conv.ContactID).First(&out.Contact)
	db.Where("id = ?", conv.ChannelID).First(&out.Channel)
	if conv.AssignedAgentID != nil {
		var agent models.Agent
		if db.Where("id = ?", *conv.AssignedAgentID).First(&agent).Error == nil {
			out.AssignedAgent = &agent
		}
	}
	return out
}

// GET /conversations/:id
func (cc *ConversationController) Get(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	id, ok := ParamString(c, "id")
	if !ok {
		return
	}
	db := dbpkg.DBInstance(c)

	var conv models.Conversation
	if err := db.Where("id = ? AND organization_id = ?", id, identity.OrganizationID).First(&conv).Error; err != nil {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}
	RespondSuccess(c, hydrateConversation(db, conv))
}

// GET /conversations/:id/events?page=&limit= — audit trail, newest
// first, per spec.md §6.
func (cc *ConversationController) ListEvents(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	id, ok := ParamString(c, "id")
	if !ok {
		return
	}
	db := dbpkg.DBInstance(c)

	if !conversationBelongsToOrg(db, id, identity.OrganizationID) {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	page := 1
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	var events []models.ConversationEvent
	if err := db.Where("conversation_id = ?", id).
		Order("created_at desc, id desc").Offset((page - 1) * limit).Limit(limit).
		Find(&events).Error; err != nil {
		RespondError(c, "failed to list events", http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, gin.H{"data": events, "page": page, "limit": limit})
}

// GET /conversations/:id/messages?cursor=...&limit=50 — cursor-based
// descending-by-createdAt pagination over append-only rows (spec.md §6,
// §8 property 8: a cursor must never skip or repeat a row even as new
// messages are appended concurrently). The cursor is the id of the
// last message on the previous page; since ids are random UUIDs with
// no relationship to insertion order, the boundary actually paged on
// is that message's own createdAt (tie-broken by id), not the id
// itself.
func (cc *ConversationController) ListMessages(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	id, ok := ParamString(c, "id")
	if !ok {
		return
	}
	db := dbpkg.DBInstance(c)

	if !conversationBelongsToOrg(db, id, identity.OrganizationID) {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	query := db.Where("conversation_id = ?", id)
	if cursor := c.Query("cursor"); cursor != "" {
		var boundary models.Message
		if err := db.Where("id = ? AND conversation_id = ?", cursor, id).First(&boundary).Error; err != nil {
			RespondError(c, "invalid cursor", http.StatusBadRequest)
			return
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", boundary.CreatedAt, boundary.CreatedAt, boundary.ID)
	}

	var messages []models.Message
	if err := query.Order("created_at desc, id desc").Limit(limit + 1).Find(&messages).Error; err != nil {
		RespondError(c, "failed to list messages", http.StatusInternalServerError)
		return
	}

	var nextCursor any
	if len(messages) > limit {
		messages = messages[:limit]
		nextCursor = messages[limit-1].ID
	}
	RespondSuccess(c, gin.H{"data": messages, "nextCursor": nextCursor})
}

// POST /conversations/:id/accept
func (cc *ConversationController) Accept(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	id, ok := ParamString(c, "id")
	if !ok {
		return
	}

	conv, err := cc.Service.Accept(c.Request.Context(), id, identity.AgentID)
	if err != nil {
		respondAppErr(c, err)
		return
	}
	RespondSuccess(c, conv)
}

// POST /conversations/:id/release
func (cc *ConversationController) Release(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	id, ok := ParamString(c, "id")
	if !ok {
		return
	}

	conv, err := cc.Service.Release(c.Request.Context(), id, identity.AgentID)
	if err != nil {
		respondAppErr(c, err)
		return
	}
	RespondSuccess(c, conv)
}

// POST /conversations/:id/complete
func (cc *ConversationController) Complete(c *gin.Context) {
	identity := RequireIdentity(c)
	if identity == nil {
		return
	}
	id, ok := ParamString(c, "id")
	if !ok {
		return
	}

	conv, err := cc.Service.Complete(c.Request.Context(), id, identity.AgentID)
	if err != nil {
		respondAppErr(c, err)
		return
	}
	RespondSuccess(c, conv)
}

func conversationBelongsToOrg(db *gorm.DB, conversationID, organizationID string) bool {
	var conv models.Conversation
	err := db.Where("id = ? AND organization_id = ?", conversationID, organizationID).First(&conv).Error
	return err == nil
}

func respondAppErr(c *gin.Context, err error) {
	if appErr, ok := apperr.As(err); ok {
		RespondError(c, appErr.Message, apperr.Status(appErr.Kind))
		return
	}
	RespondError(c, err.Error(), http.StatusInternalServerError)
}

// RequireIdentity reads the authn.Identity the auth middleware attached
// to the request context, responding 401 and returning nil if absent.
func RequireIdentity(c *gin.Context) *authn.Identity {
	v, ok := c.Get(IdentityContextKey)
	if !ok {
		RespondError(c, "unauthorized", http.StatusUnauthorized)
		return nil
	}
	identity, ok := v.(authn.Identity)
	if !ok {
		RespondError(c, "unauthorized", http.StatusUnauthorized)
		return nil
	}
	return &identity
}
