// Package outbound is the agent-to-contact send pipeline (spec.md
// §4.5): an agent replies to a conversation, a PENDING Message row is
// created, an asynq job is enqueued, and a worker dispatches it
// through the channel's providers.Adapter, applying the result back
// onto the Message row and publishing message.updated. Grounded on
// the teacher's dispatch-then-ticker-poll shape
// (workers/events_processor.go's handleEvent), replacing the ticker
// with asynq's push-based worker pool per queue.Config.
package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jinzhu/gorm"

	"github.com/penelope/inbox/apperr"
	"github.com/penelope/inbox/eventbus"
	"github.com/penelope/inbox/models"
	"github.com/penelope/inbox/providers"
	"github.com/penelope/inbox/queue"
)

type Pipeline struct {
	db       *gorm.DB
	client   *asynq.Client
	bus      *eventbus.Mirror
	adapters map[string]providers.Adapter
}

func NewPipeline(db *gorm.DB, client *asynq.Client, bus *eventbus.Mirror, adapters map[string]providers.Adapter) *Pipeline {
	return &Pipeline{db: db, client: client, bus: bus, adapters: adapters}
}

// Enqueue implements spec.md §4.5 steps 1-3: create the Message row in
// PENDING, then enqueue the send job. The caller
// (controllers.MessageController.Send) already holds a validated
// ASSIGNED conversation and agentID.
func (p *Pipeline) Enqueue(ctx context.Context, conversationID, agentID string, body, mediaRef, mediaType *string) (models.Message, error) {
	if body == nil && mediaRef == nil {
		return models.Message{}, apperr.New(apperr.Validation, "message must have a body or media")
	}

	now := time.Now()
	message := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Direction:      models.MESSAGE_DIRECTION_OUTBOUND,
		AgentID:        &agentID,
		Body:           body,
		MediaRef:       mediaRef,
		MediaType:      mediaType,
		Status:         models.MESSAGE_STATUS_PENDING,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}

	tx := p.db.Begin()
	if tx.Error != nil {
		return models.Message{}, apperr.Wrap(apperr.Fatal, "begin outbound transaction", tx.Error)
	}
	if err := tx.Create(&message).Error; err != nil {
		tx.Rollback()
		return models.Message{}, apperr.Wrap(apperr.Fatal, "create outbound message", err)
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
		Update("last_message_at", &now).Error; err != nil {
		tx.Rollback()
		return models.Message{}, apperr.Wrap(apperr.Fatal, "update conversation last_message_at", err)
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ? AND first_response_at IS NULL", conversationID).
		Update("first_response_at", &now).Error; err != nil {
		tx.Rollback()
		return models.Message{}, apperr.Wrap(apperr.Fatal, "update conversation first_response_at", err)
	}
	if err := appendEvent(tx, conversationID, models.CONV_EVENT_MESSAGE_SENT, &agentID, message.ID); err != nil {
		tx.Rollback()
		return models.Message{}, apperr.Wrap(apperr.Fatal, "append message sent event", err)
	}
	if err := tx.Commit().Error; err != nil {
		return models.Message{}, apperr.Wrap(apperr.Fatal, "commit outbound transaction", err)
	}

	task, err := queue.NewOutboundSendTask(queue.OutboundSendPayload{MessageID: message.ID, ConversationID: conversationID})
	if err != nil {
		return models.Message{}, apperr.Wrap(apperr.Fatal, "build outbound task", err)
	}
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue("critical")); err != nil {
		return models.Message{}, apperr.Wrap(apperr.Transient, "enqueue outbound task", err)
	}

	p.publish(ctx, conversationID, eventbus.Envelope{
		Type: eventbus.EventMessageNew, Room: eventbus.ConversationRoom(conversationID),
		Timestamp: now, Data: eventbus.MessageNewData{
			ConversationID: conversationID, MessageID: message.ID, Direction: message.Direction, Body: message.Body, MediaRef: message.MediaRef,
		},
	})
	return message, nil
}

// HandleSend is the asynq.Handler entry point: load the message and
// its Channel/Contact, dispatch through the right Adapter, record the
// result. A provider error is returned (wrapped with %w) rather than
// swallowed, so asynq applies queue.Config's retry/backoff policy and
// eventually dead-letters it.
func (p *Pipeline) HandleSend(ctx context.Context, task *asynq.Task) error {
	var payload queue.OutboundSendPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("outbound: invalid payload: %w", err)
	}

	var message models.Message
	if err := p.db.Where("id = ?", payload.MessageID).First(&message).Error; err != nil {
		return fmt.Errorf("outbound: load message %s: %w", payload.MessageID, err)
	}
	if message.Status != models.MESSAGE_STATUS_PENDING {
		return nil // already dispatched by a prior (retried) attempt
	}

	var conv models.Conversation
	if err := p.db.Where("id = ?", message.ConversationID).First(&conv).Error; err != nil {
		return fmt.Errorf("outbound: load conversation %s: %w", message.ConversationID, err)
	}
	var channel models.Channel
	if err := p.db.Where("id = ?", conv.ChannelID).First(&channel).Error; err != nil {
		return fmt.Errorf("outbound: load channel %s: %w", conv.ChannelID, err)
	}
	var contact models.Contact
	if err := p.db.Where("id = ?", conv.ContactID).First(&contact).Error; err != nil {
		return fmt.Errorf("outbound: load contact %s: %w", conv.ContactID, err)
	}

	adapter, ok := p.adapters[channel.Provider]
	if !ok {
		return fmt.Errorf("outbound: no adapter registered for provider %s", channel.Provider)
	}

	var cfg models.ChannelConfig
	if err := json.Unmarshal([]byte(channel.Config), &cfg); err != nil {
		return fmt.Errorf("outbound: invalid channel config: %w", err)
	}
	creds := providers.Credentials{
		AccessToken: cfg.AccessToken, ApiVersion: cfg.ApiVersion,
		PhoneNumberID: cfg.PhoneNumberID, WabaID: cfg.WabaID,
		PageID: cfg.PageID, PageToken: cfg.PageToken,
	}

	result, sendErr := adapter.Send(ctx, creds, providers.OutboundMessage{
		ToAddressingID: contact.ProviderID, Body: message.Body, MediaRef: message.MediaRef, MediaType: message.MediaType,
	})

	now := time.Now()
	if sendErr != nil {
		// Only the message's final attempt is allowed to mark it FAILED;
		// an earlier attempt leaves it PENDING so the guard above still
		// lets asynq's retry dispatch back into adapter.Send instead of
		// silently short-circuiting the remaining attempts spec.md §4.5
		// step 6's "exponential backoff, max 3 attempts" requires.
		retryCount, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retryCount < maxRetry {
			return fmt.Errorf("outbound: provider send failed: %w", sendErr)
		}

		errMsg := sendErr.Error()
		_ = message.ApplyStatus(models.MESSAGE_STATUS_FAILED)
		message.ErrorMessage = &errMsg
		message.UpdatedAt = &now
		_ = p.db.Save(&message).Error
		p.publish(ctx, message.ConversationID, eventbus.Envelope{
			Type: eventbus.EventMessageUpdated, Room: eventbus.ConversationRoom(message.ConversationID),
			Timestamp: now, Data: eventbus.MessageUpdatedData{ConversationID: message.ConversationID, MessageID: message.ID, Status: message.Status, ErrorCode: message.ErrorCode},
		})
		return fmt.Errorf("outbound: provider send failed on final attempt: %w", sendErr)
	}

	if err := message.ApplyStatus(models.MESSAGE_STATUS_SENT); err != nil {
		return fmt.Errorf("outbound: %w", err)
	}
	message.ProviderMessageID = &result.ProviderMessageID
	message.UpdatedAt = &now
	if err := p.db.Save(&message).Error; err != nil {
		return fmt.Errorf("outbound: save sent message: %w", err)
	}

	p.publish(ctx, message.ConversationID, eventbus.Envelope{
		Type: eventbus.EventMessageUpdated, Room: eventbus.ConversationRoom(message.ConversationID),
		Timestamp: now, Data: eventbus.MessageUpdatedData{ConversationID: message.ConversationID, MessageID: message.ID, Status: message.Status},
	})
	return nil
}

func (p *Pipeline) publish(ctx context.Context, conversationID string, evt eventbus.Envelope) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, evt)
}

func appendEvent(tx *gorm.DB, conversationID, eventType string, actorID *string, messageID string) error {
	meta, err := json.Marshal(map[string]any{"message_id": messageID})
	if err != nil {
		return err
	}
	now := time.Now()
	return tx.Create(&models.ConversationEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		EventType:      eventType,
		ActorID:        actorID,
		Metadata:       string(meta),
		CreatedAt:      &now,
	}).Error
}
