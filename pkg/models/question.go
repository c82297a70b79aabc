// Package models contains domain types for answer-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionStatus is the lifecycle state of a buyer question.
type QuestionStatus string

const (
	// StatusPendingApproval means the AI suggestion awaits an operator decision.
	StatusPendingApproval QuestionStatus = "PENDING_APPROVAL"
	// StatusProcessing means the AI is still generating a suggestion.
	StatusProcessing QuestionStatus = "PROCESSING"
	// StatusRevising means the operator asked the AI for a revised suggestion.
	StatusRevising QuestionStatus = "REVISING"
	// StatusApproved means the answer was approved locally but delivery to the
	// marketplace is not yet confirmed.
	StatusApproved QuestionStatus = "APPROVED"
	// StatusResponded means the marketplace confirmed delivery. Terminal.
	StatusResponded QuestionStatus = "RESPONDED"
	// StatusFailed means delivery exhausted retries or was rejected. An
	// operator may retry, re-entering APPROVED.
	StatusFailed QuestionStatus = "FAILED"
)

// ApprovableStatuses are the states from which an approval may transition a
// question to APPROVED. FAILED is included so operators can retry; RESPONDED
// is deliberately excluded (delivery already confirmed).
var ApprovableStatuses = []QuestionStatus{StatusPendingApproval, StatusRevising, StatusFailed}

// ApprovalType classifies how an answer was finalized.
type ApprovalType string

const (
	// ApprovalAuto means the AI suggestion was used as-is.
	ApprovalAuto ApprovalType = "AUTO"
	// ApprovalManual means the operator authored the answer.
	ApprovalManual ApprovalType = "MANUAL"
	// ApprovalRevised means the operator edited the AI suggestion.
	ApprovalRevised ApprovalType = "REVISED"
)

// Question tracks one buyer question's lifecycle from receipt to delivered
// answer. Records are created by the ingestion process; this service only
// mutates status, answer and retry bookkeeping. Timestamps are write-once.
type Question struct {
	ID                    uuid.UUID       `json:"id"`
	OrgID                 uuid.UUID       `json:"org_id"`
	AccountID             uuid.UUID       `json:"account_id"`
	MarketplaceQuestionID string          `json:"marketplace_question_id"`
	Text                  string          `json:"text"`
	SuggestedAnswer       *string         `json:"suggested_answer,omitempty"`
	Answer                *string         `json:"answer,omitempty"`
	ProductTitle          string          `json:"product_title"`
	BuyerNickname         string          `json:"buyer_nickname"`
	Status                QuestionStatus  `json:"status"`
	ApprovalType          *ApprovalType   `json:"approval_type,omitempty"`
	ApprovedBy            *string         `json:"approved_by,omitempty"`
	ReceivedAt            time.Time       `json:"received_at"`
	ApprovedAt            *time.Time      `json:"approved_at,omitempty"`
	AnsweredAt            *time.Time      `json:"answered_at,omitempty"`
	FailedAt              *time.Time      `json:"failed_at,omitempty"`
	RetryCount            int             `json:"retry_count"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	MarketplaceStatus     *int            `json:"marketplace_status,omitempty"`
	// MarketplaceResponse is the raw body of the last marketplace reply.
	// Stored as text: error bodies are not always valid JSON.
	MarketplaceResponse *string `json:"marketplace_response,omitempty"`
}
