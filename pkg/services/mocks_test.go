package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mlagent/answer-engine/pkg/crypto"
	"github.com/mlagent/answer-engine/pkg/marketplace"
	"github.com/mlagent/answer-engine/pkg/models"
	"github.com/mlagent/answer-engine/pkg/repositories"
)

// mockQuestionRepository is a configurable mock for testing services.
type mockQuestionRepository struct {
	question *models.Question
	getErr   error

	markApprovedErr  error
	markRespondedErr error
	markFailedErr    error

	approvedCalls  int
	respondedCalls int
	failedCalls    int

	capturedApprovalType models.ApprovalType
	capturedActorID      string
	capturedAnswer       string
	capturedStatusCode   int
	capturedPayload      string
	capturedReason       string

	monthlyUsage int
	usageErr     error

	seq    int
	seqErr error
}

func (m *mockQuestionRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Question, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.question, nil
}

func (m *mockQuestionRepository) MarkApproved(ctx context.Context, id uuid.UUID, approvalType models.ApprovalType, actorID, answer string) error {
	m.approvedCalls++
	m.capturedApprovalType = approvalType
	m.capturedActorID = actorID
	m.capturedAnswer = answer
	return m.markApprovedErr
}

func (m *mockQuestionRepository) MarkResponded(ctx context.Context, id uuid.UUID, statusCode int, payload string) error {
	m.respondedCalls++
	m.capturedStatusCode = statusCode
	m.capturedPayload = payload
	return m.markRespondedErr
}

func (m *mockQuestionRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, statusCode int, payload string) error {
	m.failedCalls++
	m.capturedReason = reason
	m.capturedStatusCode = statusCode
	m.capturedPayload = payload
	return m.markFailedErr
}

func (m *mockQuestionRepository) CountApprovedSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	if m.usageErr != nil {
		return 0, m.usageErr
	}
	return m.monthlyUsage, nil
}

func (m *mockQuestionRepository) NextDailySequence(ctx context.Context, orgID uuid.UUID, day time.Time) (int, error) {
	if m.seqErr != nil {
		return 0, m.seqErr
	}
	return m.seq, nil
}

var _ repositories.QuestionRepository = (*mockQuestionRepository)(nil)

// mockAccountRepository returns a fixed account and credential envelope.
type mockAccountRepository struct {
	account *models.Account
	token   *crypto.EncryptedToken
	err     error
}

func (m *mockAccountRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Account, *crypto.EncryptedToken, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.account, m.token, nil
}

var _ repositories.AccountRepository = (*mockAccountRepository)(nil)

// mockQuotaService returns a fixed allowance.
type mockQuotaService struct {
	allowance *Allowance
	err       error
}

func (m *mockQuotaService) CheckQuestionAllowance(ctx context.Context, orgID uuid.UUID) (*Allowance, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.allowance != nil {
		return m.allowance, nil
	}
	return &Allowance{Allowed: true}, nil
}

var _ QuotaService = (*mockQuotaService)(nil)

// mockPoster records delivery attempts and returns a canned outcome.
type mockPoster struct {
	result *marketplace.Result
	err    error

	calls         int
	capturedToken string
	capturedID    string
	capturedText  string
}

func (m *mockPoster) PostAnswer(ctx context.Context, accessToken, questionID, text string) (*marketplace.Result, error) {
	m.calls++
	m.capturedToken = accessToken
	m.capturedID = questionID
	m.capturedText = text
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

var _ marketplace.AnswerPoster = (*mockPoster)(nil)

// recordingNotifier captures fan-out invocations.
type recordingNotifier struct {
	approved  int
	delivered int
	failed    int

	capturedAnswer   string
	capturedSeller   string
	capturedAuto     bool
	capturedReason   string
	capturedCanRetry bool
}

func (n *recordingNotifier) QuestionApproved(ctx context.Context, q *models.Question) {
	n.approved++
}

func (n *recordingNotifier) AnswerDelivered(ctx context.Context, q *models.Question, answer, sellerName string, autoApproved bool) {
	n.delivered++
	n.capturedAnswer = answer
	n.capturedSeller = sellerName
	n.capturedAuto = autoApproved
}

func (n *recordingNotifier) DeliveryFailed(ctx context.Context, q *models.Question, reason string, canRetry bool) {
	n.failed++
	n.capturedReason = reason
	n.capturedCanRetry = canRetry
}
