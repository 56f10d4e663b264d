// Package conversation implements the dispatch state machine spec.md
// §4.3 describes: accept, release, complete, reopen and the
// disconnect-triggered releaseByAgent path, each moving a Conversation
// between pending/assigned/completed. Accept takes a lock against the
// external Coordination Store rather than a DB-only optimistic update
// — the same trylock-then-reread shape as the teacher's
// upsertDebouncedEvent transaction, but with the lock held in Redis so
// two server processes racing for the same conversation genuinely
// serialize instead of racing on in-process memory only. Release,
// Complete and ReleaseByAgent take no lock; they check status and
// ownership against the row instead.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"github.com/penelope/inbox/apperr"
	"github.com/penelope/inbox/coordination"
	"github.com/penelope/inbox/eventbus"
	"github.com/penelope/inbox/models"
)

const lockTTL = 5 * time.Second

type Service struct {
	db    *gorm.DB
	coord *coordination.Store
	bus   *eventbus.Mirror
}

func NewService(db *gorm.DB, coord *coordination.Store, bus *eventbus.Mirror) *Service {
	return &Service{db: db, coord: coord, bus: bus}
}

func lockKeyFor(conversationID string) string {
	return "conversation:" + conversationID
}

// Accept implements spec.md §4.3's numbered accept protocol:
//  1. acquire the external lock for this conversation
//  2. re-read the conversation row inside the lock
//  3. reject if it is not PENDING (someone else already has it, or it's completed)
//  4. set status=ASSIGNED, assignedAgentId=agentId
//  5. release the lock, then publish conversation.assigned and
//     conversation.updated
//
// Only one caller can hold the lock for a given conversation at a
// time; a caller that finds it held fails at once with Conflict. Step
// 2's re-read covers the caller that gets the lock after an earlier
// holder has already assigned the conversation: it sees a non-PENDING
// row and fails with Conflict as well.
func (s *Service) Accept(ctx context.Context, conversationID, agentID string) (models.Conversation, error) {
	lock, ok, err := s.coord.TryLock(ctx, lockKeyFor(conversationID), lockTTL)
	if err != nil {
		return models.Conversation{}, apperr.Wrap(apperr.Transient, "acquire conversation lock", err)
	}
	if !ok {
		return models.Conversation{}, apperr.New(apperr.Conflict, "conversation is being accepted by someone else")
	}
	unlocked := false
	unlock := func() {
		if !unlocked {
			unlocked = true
			_ = s.coord.Unlock(ctx, lock)
		}
	}
	defer unlock()

	var conv models.Conversation
	if err := s.db.Where("id = ?", conversationID).First(&conv).Error; err != nil {
		return models.Conversation{}, notFoundOrErr(err, "conversation")
	}
	if conv.Status != models.CONVERSATION_STATUS_PENDING {
		return models.Conversation{}, apperr.New(apperr.Conflict, fmt.Sprintf("conversation is %s, not pending", conv.Status))
	}

	now := time.Now()
	tx := s.db.Begin()
	if tx.Error != nil {
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "begin accept transaction", tx.Error)
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ? AND status = ?", conversationID, models.CONVERSATION_STATUS_PENDING).
		Updates(map[string]any{
			"status":            models.CONVERSATION_STATUS_ASSIGNED,
			"assigned_agent_id": agentID,
			"updated_at":        &now,
		}).Error; err != nil {
		tx.Rollback()
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "update conversation", err)
	}
	if err := appendEvent(tx, conversationID, models.CONV_EVENT_ACCEPTED, &agentID); err != nil {
		tx.Rollback()
		return models.Conversation{}, err
	}
	if err := tx.Commit().Error; err != nil {
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "commit accept transaction", err)
	}

	conv.Status = models.CONVERSATION_STATUS_ASSIGNED
	conv.AssignedAgentID = &agentID
	conv.UpdatedAt = &now

	unlock()
	s.publish(ctx, eventbus.Envelope{
		Type: eventbus.EventConversationAssigned, Room: eventbus.OrgRoom(conv.OrganizationID),
		Timestamp: now, Data: eventbus.ConversationAssignedData{ConversationID: conversationID, AgentID: agentID},
	})
	s.publish(ctx, eventbus.Envelope{
		Type: eventbus.EventConversationUpdated, Room: eventbus.OrgRoom(conv.OrganizationID),
		Timestamp: now, Data: eventbus.ConversationUpdatedData{ConversationID: conversationID, Status: conv.Status, AssignedAgentID: conv.AssignedAgentID},
	})
	return conv, nil
}

// Release moves an ASSIGNED conversation back to PENDING at the
// requesting agent's own initiative. Unlike Accept this does not need
// the distributed lock: only the assigned agent can release their own
// conversation, so there is no race to arbitrate.
func (s *Service) Release(ctx context.Context, conversationID, agentID string) (models.Conversation, error) {
	return s.release(ctx, conversationID, agentID, "agent_released")
}

// ReleaseByAgent is called by the Socket Gateway when an agent's
// connection drops; spec.md §4.7 requires this to happen immediately,
// with no grace period, for every conversation that agent held.
func (s *Service) ReleaseByAgent(ctx context.Context, agentID string) error {
	var convs []models.Conversation
	if err := s.db.Where("assigned_agent_id = ? AND status = ?", agentID, models.CONVERSATION_STATUS_ASSIGNED).Find(&convs).Error; err != nil {
		return apperr.Wrap(apperr.Fatal, "list agent conversations", err)
	}
	for _, c := range convs {
		if _, err := s.release(ctx, c.ID, agentID, "agent_disconnected"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) release(ctx context.Context, conversationID, agentID, reason string) (models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.Where("id = ?", conversationID).First(&conv).Error; err != nil {
		return models.Conversation{}, notFoundOrErr(err, "conversation")
	}
	if conv.Status != models.CONVERSATION_STATUS_ASSIGNED {
		return models.Conversation{}, apperr.New(apperr.Conflict, fmt.Sprintf("conversation is %s, not assigned", conv.Status))
	}
	if conv.AssignedAgentID == nil || *conv.AssignedAgentID != agentID {
		return models.Conversation{}, apperr.New(apperr.Authz, "conversation is not assigned to this agent")
	}

	now := time.Now()
	eventType := models.CONV_EVENT_RELEASED
	if reason == "agent_disconnected" {
		eventType = models.CONV_EVENT_AGENT_DISCONNECTED
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "begin release transaction", tx.Error)
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Updates(map[string]any{
		"status":            models.CONVERSATION_STATUS_PENDING,
		"assigned_agent_id": nil,
		"updated_at":        &now,
	}).Error; err != nil {
		tx.Rollback()
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "update conversation", err)
	}
	if err := appendEvent(tx, conversationID, eventType, &agentID); err != nil {
		tx.Rollback()
		return models.Conversation{}, err
	}
	if err := tx.Commit().Error; err != nil {
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "commit release transaction", err)
	}

	conv.Status = models.CONVERSATION_STATUS_PENDING
	conv.AssignedAgentID = nil
	conv.UpdatedAt = &now

	s.publish(ctx, eventbus.Envelope{
		Type: eventbus.EventConversationReleased, Room: eventbus.OrgRoom(conv.OrganizationID),
		Timestamp: now, Data: eventbus.ConversationReleasedData{ConversationID: conversationID, PreviousAgentID: agentID, Reason: reason},
	})
	s.publish(ctx, eventbus.Envelope{
		Type: eventbus.EventConversationUpdated, Room: eventbus.OrgRoom(conv.OrganizationID),
		Timestamp: now, Data: eventbus.ConversationUpdatedData{ConversationID: conversationID, Status: conv.Status, AssignedAgentID: conv.AssignedAgentID},
	})
	return conv, nil
}

// Complete closes out an ASSIGNED conversation the requesting agent
// holds. A completed conversation reopens (see webhook.Processor) the
// next time the contact sends a message, it is never deleted.
func (s *Service) Complete(ctx context.Context, conversationID, agentID string) (models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.Where("id = ?", conversationID).First(&conv).Error; err != nil {
		return models.Conversation{}, notFoundOrErr(err, "conversation")
	}
	if conv.Status != models.CONVERSATION_STATUS_ASSIGNED {
		return models.Conversation{}, apperr.New(apperr.Conflict, fmt.Sprintf("conversation is %s, not assigned", conv.Status))
	}
	if conv.AssignedAgentID == nil || *conv.AssignedAgentID != agentID {
		return models.Conversation{}, apperr.New(apperr.Authz, "conversation is not assigned to this agent")
	}

	now := time.Now()
	tx := s.db.Begin()
	if tx.Error != nil {
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "begin complete transaction", tx.Error)
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Updates(map[string]any{
		"status":     models.CONVERSATION_STATUS_COMPLETED,
		"updated_at": &now,
	}).Error; err != nil {
		tx.Rollback()
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "update conversation", err)
	}
	if err := appendEvent(tx, conversationID, models.CONV_EVENT_COMPLETED, &agentID); err != nil {
		tx.Rollback()
		return models.Conversation{}, err
	}
	if err := tx.Commit().Error; err != nil {
		return models.Conversation{}, apperr.Wrap(apperr.Fatal, "commit complete transaction", err)
	}

	conv.Status = models.CONVERSATION_STATUS_COMPLETED
	conv.UpdatedAt = &now

	s.publish(ctx, eventbus.Envelope{
		Type: eventbus.EventConversationCompleted, Room: eventbus.OrgRoom(conv.OrganizationID),
		Timestamp: now, Data: eventbus.ConversationCompletedData{ConversationID: conversationID, AgentID: agentID},
	})
	s.publish(ctx, eventbus.Envelope{
		Type: eventbus.EventConversationUpdated, Room: eventbus.OrgRoom(conv.OrganizationID),
		Timestamp: now, Data: eventbus.ConversationUpdatedData{ConversationID: conversationID, Status: conv.Status, AssignedAgentID: conv.AssignedAgentID},
	})
	return conv, nil
}

func appendEvent(tx *gorm.DB, conversationID, eventType string, actorID *string) error {
	now := time.Now()
	return tx.Create(&models.ConversationEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		EventType:      eventType,
		ActorID:        actorID,
		Metadata:       "{}",
		CreatedAt:      &now,
	}).Error
}

func (s *Service) publish(ctx context.Context, evt eventbus.Envelope) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, evt)
}

func notFoundOrErr(err error, what string) error {
	if err == gorm.ErrRecordNotFound {
		return apperr.New(apperr.NotFound, what+" not found")
	}
	return apperr.Wrap(apperr.Fatal, "load "+what, err)
}
