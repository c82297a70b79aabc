package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlagent/answer-engine/pkg/models"
)

// NotificationPort is the outcome propagation interface consumed by the
// approval orchestrator. Implementations must never let a notification
// failure reach the caller: a chat-provider outage must not turn a
// successful marketplace delivery into an error response.
type NotificationPort interface {
	// QuestionApproved signals the local approval write, before delivery.
	QuestionApproved(ctx context.Context, q *models.Question)
	// AnswerDelivered signals a confirmed delivery.
	AnswerDelivered(ctx context.Context, q *models.Question, answer, sellerName string, autoApproved bool)
	// DeliveryFailed signals an exhausted or rejected delivery.
	DeliveryFailed(ctx context.Context, q *models.Question, reason string, canRetry bool)
}

// DailySequencer advances the per-organization daily counter backing the
// chat display id. Satisfied by repositories.QuestionRepository.
type DailySequencer interface {
	NextDailySequence(ctx context.Context, orgID uuid.UUID, day time.Time) (int, error)
}

// Fanout propagates outcomes to the realtime channel and the chat gateway.
type Fanout struct {
	realtime  RealtimeEmitter
	chat      ChatDispatcher
	sequencer DailySequencer
	logger    *zap.Logger
}

// NewFanout creates the notification fan-out.
func NewFanout(realtime RealtimeEmitter, chat ChatDispatcher, sequencer DailySequencer, logger *zap.Logger) *Fanout {
	return &Fanout{
		realtime:  realtime,
		chat:      chat,
		sequencer: sequencer,
		logger:    logger,
	}
}

// questionEvent is the realtime payload for question lifecycle events.
type questionEvent struct {
	ID                    uuid.UUID `json:"id"`
	MarketplaceQuestionID string    `json:"marketplaceQuestionId"`
	Status                string    `json:"status"`
	Reason                string    `json:"reason,omitempty"`
	CanRetry              *bool     `json:"canRetry,omitempty"`
}

func (f *Fanout) QuestionApproved(ctx context.Context, q *models.Question) {
	f.guard("question approved event", func() error {
		return f.realtime.Emit(ctx, q.OrgID, EventQuestionApproved, questionEvent{
			ID:                    q.ID,
			MarketplaceQuestionID: q.MarketplaceQuestionID,
			Status:                string(models.StatusApproved),
		})
	})
}

func (f *Fanout) AnswerDelivered(ctx context.Context, q *models.Question, answer, sellerName string, autoApproved bool) {
	now := time.Now()

	var displayID string
	f.guard("daily sequence", func() error {
		seq, err := f.sequencer.NextDailySequence(ctx, q.OrgID, now)
		if err != nil {
			return err
		}
		displayID = FormatDisplayID(seq, now)
		return nil
	})

	f.guard("chat confirmation", func() error {
		return f.chat.SendAnswerConfirmation(ctx, &AnswerConfirmation{
			DisplayID:    displayID,
			Question:     q.Text,
			Answer:       answer,
			ProductTitle: q.ProductTitle,
			SellerName:   sellerName,
			AutoApproved: autoApproved,
		})
	})

	f.guard("answer confirmed event", func() error {
		return f.realtime.Emit(ctx, q.OrgID, EventAnswerConfirmed, questionEvent{
			ID:                    q.ID,
			MarketplaceQuestionID: q.MarketplaceQuestionID,
			Status:                string(models.StatusResponded),
		})
	})

	f.guard("question updated event", func() error {
		return f.realtime.Emit(ctx, q.OrgID, EventQuestionUpdated, questionEvent{
			ID:                    q.ID,
			MarketplaceQuestionID: q.MarketplaceQuestionID,
			Status:                string(models.StatusResponded),
		})
	})
}

func (f *Fanout) DeliveryFailed(ctx context.Context, q *models.Question, reason string, canRetry bool) {
	f.guard("question failed event", func() error {
		return f.realtime.Emit(ctx, q.OrgID, EventQuestionFailed, questionEvent{
			ID:                    q.ID,
			MarketplaceQuestionID: q.MarketplaceQuestionID,
			Status:                string(models.StatusFailed),
			Reason:                reason,
			CanRetry:              &canRetry,
		})
	})
}

// guard runs one notification step, logging errors and recovering panics.
func (f *Fanout) guard(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Notification panicked",
				zap.String("step", name),
				zap.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		f.logger.Warn("Notification failed",
			zap.String("step", name),
			zap.Error(err))
	}
}

// Ensure Fanout implements NotificationPort at compile time.
var _ NotificationPort = (*Fanout)(nil)

// NopNotifier discards all notifications. Useful for tests.
type NopNotifier struct{}

func (NopNotifier) QuestionApproved(ctx context.Context, q *models.Question) {}
func (NopNotifier) AnswerDelivered(ctx context.Context, q *models.Question, answer, sellerName string, autoApproved bool) {
}
func (NopNotifier) DeliveryFailed(ctx context.Context, q *models.Question, reason string, canRetry bool) {
}

// Ensure NopNotifier implements NotificationPort at compile time.
var _ NotificationPort = NopNotifier{}
