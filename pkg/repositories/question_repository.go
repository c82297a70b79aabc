// Package repositories contains the PostgreSQL data access layer. All
// methods read the tenant-scoped connection from context; queries are
// additionally scoped by organization id so a record in another tenant is
// indistinguishable from a nonexistent one.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/database"
	"github.com/mlagent/answer-engine/pkg/models"
)

// questionColumns is the scan list shared by question queries.
const questionColumns = `id, org_id, account_id, marketplace_question_id, question_text,
	suggested_answer, answer, product_title, buyer_nickname, status, approval_type,
	approved_by, received_at, approved_at, answered_at, failed_at, retry_count,
	failure_reason, marketplace_status, marketplace_response`

// QuestionRepository defines data access for question records.
type QuestionRepository interface {
	// GetByID retrieves a question by id within an organization.
	// Returns apperrors.ErrNotFound for both missing and cross-tenant ids.
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Question, error)

	// MarkApproved conditionally transitions the question to APPROVED,
	// recording the approval metadata and the final answer text. The update
	// only applies while the stored status is one of
	// models.ApprovableStatuses; otherwise apperrors.ErrConflict is
	// returned. approved_at is write-once.
	MarkApproved(ctx context.Context, id uuid.UUID, approvalType models.ApprovalType, actorID, answer string) error

	// MarkResponded records confirmed delivery: terminal RESPONDED status,
	// write-once answered_at, retry counter reset, marketplace echo stored.
	MarkResponded(ctx context.Context, id uuid.UUID, statusCode int, payload string) error

	// MarkFailed records a failed delivery: FAILED status, write-once
	// failed_at, retry counter incremented, reason and marketplace echo
	// stored. statusCode 0 means no HTTP response was observed.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, statusCode int, payload string) error

	// CountApprovedSince counts approval actions for the organization since
	// the given instant. Used for quota enforcement.
	CountApprovedSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error)

	// NextDailySequence increments and returns the organization's sequence
	// number for the given day. Backs the NN/DDMM display id.
	NextDailySequence(ctx context.Context, orgID uuid.UUID, day time.Time) (int, error)
}

type questionRepository struct{}

// NewQuestionRepository creates a new question repository.
func NewQuestionRepository() QuestionRepository {
	return &questionRepository{}
}

func (r *questionRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Question, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + questionColumns + `
		FROM questions
		WHERE org_id = $1 AND id = $2`

	var q models.Question
	err := scope.Conn.QueryRow(ctx, query, orgID, id).Scan(
		&q.ID,
		&q.OrgID,
		&q.AccountID,
		&q.MarketplaceQuestionID,
		&q.Text,
		&q.SuggestedAnswer,
		&q.Answer,
		&q.ProductTitle,
		&q.BuyerNickname,
		&q.Status,
		&q.ApprovalType,
		&q.ApprovedBy,
		&q.ReceivedAt,
		&q.ApprovedAt,
		&q.AnsweredAt,
		&q.FailedAt,
		&q.RetryCount,
		&q.FailureReason,
		&q.MarketplaceStatus,
		&q.MarketplaceResponse,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	return &q, nil
}

func (r *questionRepository) MarkApproved(ctx context.Context, id uuid.UUID, approvalType models.ApprovalType, actorID, answer string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	statuses := make([]string, len(models.ApprovableStatuses))
	for i, s := range models.ApprovableStatuses {
		statuses[i] = string(s)
	}

	query := `
		UPDATE questions
		SET status = $2,
		    approval_type = $3,
		    approved_by = $4,
		    answer = $5,
		    approved_at = COALESCE(approved_at, now())
		WHERE id = $1 AND status = ANY($6)`

	result, err := scope.Conn.Exec(ctx, query,
		id, string(models.StatusApproved), string(approvalType), actorID, answer, statuses)
	if err != nil {
		return fmt.Errorf("failed to mark question approved: %w", err)
	}

	if result.RowsAffected() == 0 {
		// A concurrent approval or an already-confirmed delivery won the race.
		return apperrors.ErrConflict
	}

	return nil
}

func (r *questionRepository) MarkResponded(ctx context.Context, id uuid.UUID, statusCode int, payload string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE questions
		SET status = $2,
		    answered_at = COALESCE(answered_at, now()),
		    retry_count = 0,
		    marketplace_status = $3,
		    marketplace_response = $4
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query,
		id, string(models.StatusResponded), statusCode, payload)
	if err != nil {
		return fmt.Errorf("failed to mark question responded: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *questionRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, statusCode int, payload string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE questions
		SET status = $2,
		    failed_at = COALESCE(failed_at, now()),
		    retry_count = retry_count + 1,
		    failure_reason = $3,
		    marketplace_status = NULLIF($4, 0),
		    marketplace_response = $5
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query,
		id, string(models.StatusFailed), reason, statusCode, payload)
	if err != nil {
		return fmt.Errorf("failed to mark question failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *questionRepository) CountApprovedSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT COUNT(*)
		FROM questions
		WHERE org_id = $1 AND approved_at IS NOT NULL AND approved_at >= $2`

	var count int
	if err := scope.Conn.QueryRow(ctx, query, orgID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count approved questions: %w", err)
	}

	return count, nil
}

func (r *questionRepository) NextDailySequence(ctx context.Context, orgID uuid.UUID, day time.Time) (int, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO org_daily_sequences (org_id, day, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (org_id, day) DO UPDATE SET seq = org_daily_sequences.seq + 1
		RETURNING seq`

	var seq int
	if err := scope.Conn.QueryRow(ctx, query, orgID, day.Format("2006-01-02")).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to advance daily sequence: %w", err)
	}

	return seq, nil
}

// Ensure questionRepository implements QuestionRepository at compile time.
var _ QuestionRepository = (*questionRepository)(nil)
