// Package services contains the business logic of the answer pipeline.
package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/crypto"
	"github.com/mlagent/answer-engine/pkg/marketplace"
	"github.com/mlagent/answer-engine/pkg/models"
	"github.com/mlagent/answer-engine/pkg/notify"
	"github.com/mlagent/answer-engine/pkg/repositories"
)

// Action is the operator's decision on a question.
type Action string

const (
	// ActionApprove accepts the AI suggestion as-is.
	ActionApprove Action = "approve"
	// ActionManual submits an operator-authored answer.
	ActionManual Action = "manual"
	// ActionRevise submits an operator-edited version of the AI suggestion.
	ActionRevise Action = "revise"
)

// approvalTypeFor maps an operator action to the stored approval type.
func approvalTypeFor(action Action) (models.ApprovalType, bool) {
	switch action {
	case ActionApprove:
		return models.ApprovalAuto, true
	case ActionManual:
		return models.ApprovalManual, true
	case ActionRevise:
		return models.ApprovalRevised, true
	default:
		return "", false
	}
}

// ApprovalRequest is the explicit request context for one approval. OrgID
// and ActorID come from the authenticated session; the rest from the
// operator's payload.
type ApprovalRequest struct {
	OrgID      uuid.UUID
	ActorID    string
	QuestionID string
	Action     Action
	Response   string
}

// ApprovalResult is the outcome returned to the caller.
type ApprovalResult struct {
	Delivered         bool
	AlreadyAnswered   bool
	Message           string
	MarketplaceStatus int
	MarketplaceBody   string
	FailureReason     string
	// CanRetry is set on failures: a FAILED record is not poisoned and a
	// subsequent operator action may retry it.
	CanRetry bool
}

// ApprovalService turns an operator's decision into a durable,
// externally-confirmed answer.
type ApprovalService interface {
	// Approve validates the request, records the local approval, delivers
	// the answer to the marketplace with bounded retry, applies the
	// terminal state transition and fans out notifications. Validation
	// failures are returned as errors with no side effects; delivery
	// failures are returned as a non-nil result with Delivered=false.
	Approve(ctx context.Context, req *ApprovalRequest) (*ApprovalResult, error)
}

type approvalService struct {
	questions repositories.QuestionRepository
	accounts  repositories.AccountRepository
	quota     QuotaService
	cipher    *crypto.TokenCipher
	client    marketplace.AnswerPoster
	notifier  notify.NotificationPort
	logger    *zap.Logger
}

// NewApprovalService creates the approval orchestrator.
func NewApprovalService(
	questions repositories.QuestionRepository,
	accounts repositories.AccountRepository,
	quota QuotaService,
	cipher *crypto.TokenCipher,
	client marketplace.AnswerPoster,
	notifier notify.NotificationPort,
	logger *zap.Logger,
) ApprovalService {
	return &approvalService{
		questions: questions,
		accounts:  accounts,
		quota:     quota,
		cipher:    cipher,
		client:    client,
		notifier:  notifier,
		logger:    logger,
	}
}

func (s *approvalService) Approve(ctx context.Context, req *ApprovalRequest) (*ApprovalResult, error) {
	if req.OrgID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	allowance, err := s.quota.CheckQuestionAllowance(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("quota check failed: %w", err)
	}
	if !allowance.Allowed {
		return nil, &apperrors.QuotaExceededError{
			Reason:          allowance.Reason,
			UpgradeRequired: allowance.UpgradeRequired,
		}
	}

	if req.QuestionID == "" || req.Action == "" {
		return nil, apperrors.ErrInvalidRequest
	}

	operatorText := ""
	if req.Response != "" {
		operatorText = SanitizeResponseText(req.Response)
		if operatorText == "" {
			return nil, apperrors.ErrEmptyResponse
		}
		if utf8.RuneCountInString(operatorText) > MaxResponseLength {
			return nil, apperrors.ErrResponseTooLong
		}
	}

	approvalType, ok := approvalTypeFor(req.Action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidAction, req.Action)
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed question id", apperrors.ErrNotFound)
	}

	question, err := s.questions.GetByID(ctx, req.OrgID, questionID)
	if err != nil {
		return nil, err
	}

	// RESPONDED is terminal: a repeated approval is an idempotent no-op.
	if question.Status == models.StatusResponded {
		s.logger.Info("Question already responded, skipping submission",
			zap.String("question_id", question.ID.String()))
		result := &ApprovalResult{
			Delivered:       true,
			AlreadyAnswered: true,
			Message:         "answer was already delivered",
		}
		if question.MarketplaceStatus != nil {
			result.MarketplaceStatus = *question.MarketplaceStatus
		}
		if question.MarketplaceResponse != nil {
			result.MarketplaceBody = *question.MarketplaceResponse
		}
		return result, nil
	}

	account, encToken, err := s.accounts.GetByID(ctx, req.OrgID, question.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !account.Active {
		return nil, apperrors.ErrAccountInactive
	}
	if encToken.Empty() {
		return nil, apperrors.ErrMissingCredentials
	}

	accessToken, err := s.cipher.DecryptToken(encToken)
	if err != nil {
		s.logger.Error("Credential decryption failed",
			zap.String("account_id", account.ID.String()),
			zap.Error(err))
		return nil, err
	}

	answer := operatorText
	if answer == "" {
		if question.SuggestedAnswer == nil || *question.SuggestedAnswer == "" {
			return nil, apperrors.ErrNoResponseAvailable
		}
		answer = *question.SuggestedAnswer
	}

	// Record approval intent before the external call so the audit trail
	// distinguishes approval from delivery outcome.
	if err := s.questions.MarkApproved(ctx, question.ID, approvalType, req.ActorID, answer); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// A concurrent approval won the local transition. Proceed: a
			// duplicate submission is absorbed by the marketplace's
			// "already answered" response.
			s.logger.Warn("Concurrent approval detected, proceeding to delivery",
				zap.String("question_id", question.ID.String()))
		} else {
			return nil, fmt.Errorf("failed to record approval: %w", err)
		}
	}
	question.Status = models.StatusApproved
	question.ApprovalType = &approvalType
	question.Answer = &answer

	s.notifier.QuestionApproved(ctx, question)

	delivery, err := s.client.PostAnswer(ctx, accessToken, question.MarketplaceQuestionID, answer)
	if err != nil {
		return s.recordFailure(ctx, question, err), nil
	}

	return s.recordDelivery(ctx, question, account, delivery, answer, approvalType), nil
}

// recordDelivery applies the RESPONDED terminal transition and fans out the
// success notifications.
func (s *approvalService) recordDelivery(
	ctx context.Context,
	question *models.Question,
	account *models.Account,
	delivery *marketplace.Result,
	answer string,
	approvalType models.ApprovalType,
) *ApprovalResult {
	body := string(delivery.Body)

	if err := s.questions.MarkResponded(ctx, question.ID, delivery.StatusCode, body); err != nil {
		// The marketplace has the answer; a stale local ledger is the
		// lesser issue than reporting a false failure and prompting a
		// duplicate send.
		s.logger.Error("Delivery confirmed but persistence failed",
			zap.String("question_id", question.ID.String()),
			zap.Int("marketplace_status", delivery.StatusCode),
			zap.Error(err))
	}
	question.Status = models.StatusResponded

	s.notifier.AnswerDelivered(ctx, question, answer, account.SellerName, approvalType == models.ApprovalAuto)

	message := "answer delivered to marketplace"
	if delivery.AlreadyAnswered {
		message = "question was already answered on the marketplace"
	}

	return &ApprovalResult{
		Delivered:         true,
		AlreadyAnswered:   delivery.AlreadyAnswered,
		Message:           message,
		MarketplaceStatus: delivery.StatusCode,
		MarketplaceBody:   body,
	}
}

// recordFailure applies the FAILED terminal transition and fans out the
// failure notification. The record stays retryable.
func (s *approvalService) recordFailure(ctx context.Context, question *models.Question, cause error) *ApprovalResult {
	reason := cause.Error()
	statusCode := 0
	body := ""

	var deliveryErr *marketplace.DeliveryError
	if errors.As(cause, &deliveryErr) {
		statusCode = deliveryErr.StatusCode
		body = string(deliveryErr.Body)
	}

	if err := s.questions.MarkFailed(ctx, question.ID, reason, statusCode, body); err != nil {
		s.logger.Error("Failed to record delivery failure",
			zap.String("question_id", question.ID.String()),
			zap.Error(err))
	}
	question.Status = models.StatusFailed

	s.logger.Warn("Answer delivery failed",
		zap.String("question_id", question.ID.String()),
		zap.Int("marketplace_status", statusCode),
		zap.String("reason", reason))

	s.notifier.DeliveryFailed(ctx, question, reason, true)

	return &ApprovalResult{
		Delivered:         false,
		Message:           "answer delivery failed",
		MarketplaceStatus: statusCode,
		MarketplaceBody:   body,
		FailureReason:     reason,
		CanRetry:          true,
	}
}

// Ensure approvalService implements ApprovalService at compile time.
var _ ApprovalService = (*approvalService)(nil)
