package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jinzhu/gorm"

	"github.com/penelope/inbox/models"
	"github.com/penelope/inbox/providers"
	"github.com/penelope/inbox/queue"
)

// Worker is the asynq handler side of the Webhook Ingest component:
// it picks the job the HTTP handler enqueued, parses the raw
// payload through the channel's provider.Adapter, and hands the
// normalized result to Processor. Splitting parse-on-worker from
// verify-on-HTTP-handler keeps the HTTP path to "verify + enqueue" per
// spec.md §4.1 step 4, so a slow or failing parse never holds up the
// webhook response.
type Worker struct {
	db        *gorm.DB
	processor *Processor
	adapters  map[string]providers.Adapter
}

func NewWorker(db *gorm.DB, processor *Processor, adapters map[string]providers.Adapter) *Worker {
	return &Worker{db: db, processor: processor, adapters: adapters}
}

func (w *Worker) HandleIngest(ctx context.Context, task *asynq.Task) error {
	var payload queue.WebhookIngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("webhook: invalid payload: %w", err)
	}

	var channel models.Channel
	if err := w.db.Where("id = ?", payload.ChannelID).First(&channel).Error; err != nil {
		return fmt.Errorf("webhook: load channel %s: %w", payload.ChannelID, err)
	}

	adapter, ok := w.adapters[channel.Provider]
	if !ok {
		return fmt.Errorf("webhook: no adapter registered for provider %s", channel.Provider)
	}

	normalized, err := adapter.ParseWebhook(payload.RawPayload)
	if err != nil {
		return fmt.Errorf("webhook: parse payload: %w", err)
	}

	if err := w.processor.Process(ctx, channel, normalized); err != nil {
		return fmt.Errorf("webhook: process payload: %w", err)
	}
	return nil
}

