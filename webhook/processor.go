// Package webhook turns a provider's normalized payload into durable
// state: Contact upsert, Conversation find-or-create-or-reopen,
// Message append with provider-id dedup, ConversationEvent append,
// and an eventbus publish — the work the teacher's
// workers/events_processor.go did as a single debounced read-modify-
// write transaction (upsertDebouncedEvent), generalized here from one
// event row per message to the full conversation/message/event model
// spec.md §3 and §4.2 describe.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"github.com/penelope/inbox/eventbus"
	"github.com/penelope/inbox/models"
	"github.com/penelope/inbox/providers"
)

// isUniqueViolation recognizes the unique-constraint error shape of
// both dialects db.Connect supports, since gorm v1 surfaces the raw
// driver error rather than a typed sentinel.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite3
		strings.Contains(msg, "duplicate key value violates unique constraint") // postgres
}

func uuidString() string { return uuid.NewString() }

type Processor struct {
	db     *gorm.DB
	mirror *eventbus.Mirror
}

func NewProcessor(db *gorm.DB, mirror *eventbus.Mirror) *Processor {
	return &Processor{db: db, mirror: mirror}
}

// Process applies one NormalizedPayload from a single Channel. It is
// safe to call more than once for the same raw delivery: Message
// inserts are deduped on ProviderMessageID the same way the teacher's
// debounce step checked for an existing pending Event before
// inserting a new one.
func (p *Processor) Process(ctx context.Context, channel models.Channel, payload providers.NormalizedPayload) error {
	for _, msg := range payload.Messages {
		if err := p.processInboundMessage(ctx, channel, msg); err != nil {
			return fmt.Errorf("webhook: inbound message %s: %w", msg.ProviderMessageID, err)
		}
	}
	for _, cb := range payload.Statuses {
		if err := p.processStatusCallback(ctx, channel, cb); err != nil {
			return fmt.Errorf("webhook: status callback %s: %w", cb.ProviderMessageID, err)
		}
	}
	return nil
}

func (p *Processor) processInboundMessage(ctx context.Context, channel models.Channel, in providers.InboundMessage) error {
	tx := p.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	contact, err := upsertContact(tx, channel, in.FromAddressingID, in.Timestamp)
	if err != nil {
		tx.Rollback()
		return err
	}

	conv, created, reopened, err := findOrCreateConversation(tx, channel, contact)
	if err != nil {
		tx.Rollback()
		return err
	}

	// Dedup: a webhook delivery retried by the provider must not
	// create a second Message row for the same provider message id.
	// The SELECT below is only a fast path — the provider_message_id
	// unique_index (models/message.go) is what actually makes this
	// safe under two workers racing the same delivery; a unique
	// violation on the Create below is treated as success, per
	// spec.md §4.2, not propagated as an error.
	var existing models.Message
	dedupErr := tx.Where("provider_message_id = ?", in.ProviderMessageID).First(&existing).Error
	if dedupErr == nil {
		tx.Rollback()
		return nil
	}
	if dedupErr != gorm.ErrRecordNotFound {
		tx.Rollback()
		return dedupErr
	}

	now := time.Now()
	message := models.Message{
		ID:                uuidString(),
		ConversationID:    conv.ID,
		Direction:         models.MESSAGE_DIRECTION_INBOUND,
		Body:              in.Body,
		MediaRef:          in.MediaRef,
		MediaType:         in.MediaType,
		ProviderMessageID: ptr(in.ProviderMessageID),
		Status:            models.MESSAGE_STATUS_DELIVERED,
		CreatedAt:         &now,
		UpdatedAt:         &now,
	}
	if err := tx.Create(&message).Error; err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}

	if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Update("last_message_at", &now).Error; err != nil {
		tx.Rollback()
		return err
	}

	if reopened {
		if err := appendEvent(tx, conv.ID, models.CONV_EVENT_REOPENED, nil, nil); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := appendEvent(tx, conv.ID, models.CONV_EVENT_MESSAGE_RECEIVED, nil, map[string]any{"message_id": message.ID}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	conv.LastMessageAt = &now
	if p.mirror != nil {
		if created {
			p.mirror.Publish(ctx, eventbus.Envelope{
				Type: eventbus.EventConversationNew, Room: eventbus.OrgRoom(channel.OrganizationID),
				Timestamp: now, Data: eventbus.ConversationNewData{
					ConversationID: conv.ID, OrganizationID: conv.OrganizationID, ChannelID: conv.ChannelID,
					ContactID: conv.ContactID, Status: conv.Status,
				},
			})
		}
		p.mirror.Publish(ctx, eventbus.Envelope{
			Type: eventbus.EventConversationUpdated, Room: eventbus.OrgRoom(channel.OrganizationID),
			Timestamp: now, Data: eventbus.ConversationUpdatedData{ConversationID: conv.ID, Status: conv.Status, AssignedAgentID: conv.AssignedAgentID},
		})
		p.mirror.Publish(ctx, eventbus.Envelope{
			Type: eventbus.EventMessageNew, Room: eventbus.ConversationRoom(conv.ID),
			Timestamp: now, Data: eventbus.MessageNewData{
				ConversationID: conv.ID, MessageID: message.ID, Direction: message.Direction,
				Body: message.Body, MediaRef: message.MediaRef,
			},
		})
		if conv.AssignedAgentID != nil {
			p.mirror.Publish(ctx, eventbus.Envelope{
				Type: eventbus.EventMessageNew, Room: eventbus.AgentRoom(*conv.AssignedAgentID),
				Timestamp: now, Data: eventbus.MessageNewData{ConversationID: conv.ID, MessageID: message.ID, Direction: message.Direction, Body: message.Body},
			})
		}
	}
	return nil
}

func (p *Processor) processStatusCallback(ctx context.Context, channel models.Channel, cb providers.StatusCallback) error {
	tx := p.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if cb.WatermarkOnly {
		// A read watermark covers every message up to some point in
		// the conversation rather than naming one message id; recorded
		// as a ConversationEvent, never applied through
		// Message.ApplyStatus (spec.md §9).
		var conv models.Conversation
		if err := tx.Joins("JOIN contacts ON contacts.id = conversations.contact_id").
			Where("contacts.provider_id = ? AND conversations.channel_id = ?", cb.ProviderMessageID, channel.ID).
			First(&conv).Error; err != nil {
			tx.Rollback()
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if err := appendEvent(tx, conv.ID, models.CONV_EVENT_READ_WATERMARK, nil, nil); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit().Error
	}

	var message models.Message
	if err := tx.Where("provider_message_id = ?", cb.ProviderMessageID).First(&message).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	target := statusMap[cb.Status]
	if target == "" {
		tx.Rollback()
		return nil
	}
	if err := message.ApplyStatus(target); err != nil {
		// Out-of-order or duplicate callbacks are expected (spec.md
		// §8 property 5); not an error worth failing the job for.
		tx.Rollback()
		return nil
	}
	message.ErrorCode = cb.ErrorCode
	message.ErrorMessage = cb.ErrorMessage
	now := time.Now()
	message.UpdatedAt = &now

	if err := tx.Save(&message).Error; err != nil {
		tx.Rollback()
		return err
	}

	eventType := messageStatusEvent[target]
	if eventType != "" {
		if err := appendEvent(tx, message.ConversationID, eventType, nil, map[string]any{"message_id": message.ID}); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	if p.mirror != nil {
		p.mirror.Publish(ctx, eventbus.Envelope{
			Type: eventbus.EventMessageUpdated, Room: eventbus.ConversationRoom(message.ConversationID),
			Timestamp: now, Data: eventbus.MessageUpdatedData{
				ConversationID: message.ConversationID, MessageID: message.ID, Status: message.Status, ErrorCode: message.ErrorCode,
			},
		})
	}
	return nil
}

var statusMap = map[string]string{
	"sent":      models.MESSAGE_STATUS_SENT,
	"delivered": models.MESSAGE_STATUS_DELIVERED,
	"read":      models.MESSAGE_STATUS_READ,
	"failed":    models.MESSAGE_STATUS_FAILED,
}

var messageStatusEvent = map[string]string{
	models.MESSAGE_STATUS_SENT:      "",
	models.MESSAGE_STATUS_DELIVERED: models.CONV_EVENT_MESSAGE_DELIVERED,
	models.MESSAGE_STATUS_READ:      models.CONV_EVENT_MESSAGE_READ,
	models.MESSAGE_STATUS_FAILED:    models.CONV_EVENT_MESSAGE_FAILED,
}

func upsertContact(tx *gorm.DB, channel models.Channel, addressingID string, seenAt time.Time) (models.Contact, error) {
	var contact models.Contact
	err := tx.Where("organization_id = ? AND provider = ? AND provider_id = ?", channel.OrganizationID, channel.Provider, addressingID).
		First(&contact).Error
	if err == nil {
		contact.LastSeenAt = &seenAt
		if saveErr := tx.Save(&contact).Error; saveErr != nil {
			return models.Contact{}, saveErr
		}
		return contact, nil
	}
	if err != gorm.ErrRecordNotFound {
		return models.Contact{}, err
	}

	now := time.Now()
	contact = models.Contact{
		ID:             uuidString(),
		OrganizationID: channel.OrganizationID,
		Provider:       channel.Provider,
		ProviderID:     addressingID,
		LastSeenAt:     &seenAt,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}
	if err := tx.Create(&contact).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the race to a concurrent delivery for the same
			// (organizationId, provider, providerId); the winner's row
			// is the one to use.
			var winner models.Contact
			if findErr := tx.Where("organization_id = ? AND provider = ? AND provider_id = ?",
				channel.OrganizationID, channel.Provider, addressingID).First(&winner).Error; findErr != nil {
				return models.Contact{}, findErr
			}
			winner.LastSeenAt = &seenAt
			if saveErr := tx.Save(&winner).Error; saveErr != nil {
				return models.Contact{}, saveErr
			}
			return winner, nil
		}
		return models.Contact{}, err
	}
	return contact, nil
}

// findOrCreateConversation implements spec.md §4.2 step 2: find the
// contact's open conversation on this channel; if none exists, create
// one PENDING; if the most recent one is COMPLETED, reopen it to
// PENDING rather than creating a new row, so message history and
// firstResponseAt survive across a reopen (spec.md §9).
func findOrCreateConversation(tx *gorm.DB, channel models.Channel, contact models.Contact) (conv models.Conversation, created bool, reopened bool, err error) {
	var last models.Conversation
	err = tx.Where("channel_id = ? AND contact_id = ?", channel.ID, contact.ID).
		Order("created_at desc").First(&last).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return models.Conversation{}, false, false, err
	}
	if err == nil && last.IsOpen() {
		return last, false, false, nil
	}
	if err == nil && last.Status == models.CONVERSATION_STATUS_COMPLETED {
		if err := tx.Model(&models.Conversation{}).Where("id = ?", last.ID).Updates(map[string]any{
			"status":            models.CONVERSATION_STATUS_PENDING,
			"assigned_agent_id": nil,
		}).Error; err != nil {
			return models.Conversation{}, false, false, err
		}
		last.Status = models.CONVERSATION_STATUS_PENDING
		last.AssignedAgentID = nil
		return last, false, true, nil
	}

	now := time.Now()
	fresh := models.Conversation{
		ID:             uuidString(),
		OrganizationID: channel.OrganizationID,
		ChannelID:      channel.ID,
		ContactID:      contact.ID,
		Status:         models.CONVERSATION_STATUS_PENDING,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}
	if err := tx.Create(&fresh).Error; err != nil {
		return models.Conversation{}, false, false, err
	}
	if err := appendEvent(tx, fresh.ID, models.CONV_EVENT_CREATED, nil, nil); err != nil {
		return models.Conversation{}, false, false, err
	}
	return fresh, true, false, nil
}

func appendEvent(tx *gorm.DB, conversationID, eventType string, actorID *string, metadata map[string]any) error {
	metaJSON := "{}"
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		metaJSON = string(b)
	}
	now := time.Now()
	return tx.Create(&models.ConversationEvent{
		ID:             uuidString(),
		ConversationID: conversationID,
		EventType:      eventType,
		ActorID:        actorID,
		Metadata:       metaJSON,
		CreatedAt:      &now,
	}).Error
}

func ptr(s string) *string { return &s }
