package services

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/crypto"
	"github.com/mlagent/answer-engine/pkg/marketplace"
	"github.com/mlagent/answer-engine/pkg/models"
)

const testCipherKey = "test-credentials-key"

// fixture bundles the orchestrator with all its mocks.
type fixture struct {
	svc       ApprovalService
	questions *mockQuestionRepository
	accounts  *mockAccountRepository
	quota     *mockQuotaService
	poster    *mockPoster
	notifier  *recordingNotifier

	orgID      uuid.UUID
	questionID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cipher, err := crypto.NewTokenCipher(testCipherKey)
	require.NoError(t, err)
	encToken, err := cipher.EncryptToken("APP_USR-token")
	require.NoError(t, err)

	orgID := uuid.New()
	questionID := uuid.New()
	accountID := uuid.New()
	suggestion := "Sim, temos em estoque."

	f := &fixture{
		orgID:      orgID,
		questionID: questionID,
		questions: &mockQuestionRepository{
			question: &models.Question{
				ID:                    questionID,
				OrgID:                 orgID,
				AccountID:             accountID,
				MarketplaceQuestionID: "5551234",
				Text:                  "Tem em estoque?",
				SuggestedAnswer:       &suggestion,
				ProductTitle:          "Tenis Runner 42",
				Status:                models.StatusPendingApproval,
			},
		},
		accounts: &mockAccountRepository{
			account: &models.Account{
				ID:         accountID,
				OrgID:      orgID,
				SellerName: "Loja do Pedro",
				Active:     true,
			},
			token: encToken,
		},
		quota: &mockQuotaService{},
		poster: &mockPoster{
			result: &marketplace.Result{StatusCode: http.StatusCreated, Body: []byte(`{"id":1}`)},
		},
		notifier: &recordingNotifier{},
	}

	f.svc = NewApprovalService(f.questions, f.accounts, f.quota, cipher, f.poster, f.notifier, zap.NewNop())
	return f
}

func (f *fixture) request() *ApprovalRequest {
	return &ApprovalRequest{
		OrgID:      f.orgID,
		ActorID:    "operator-1",
		QuestionID: f.questionID.String(),
		Action:     ActionApprove,
	}
}

func TestApproveHappyPathUsesSuggestedAnswer(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Approve(context.Background(), f.request())
	require.NoError(t, err)

	assert.True(t, result.Delivered)
	assert.False(t, result.AlreadyAnswered)
	assert.Equal(t, http.StatusCreated, result.MarketplaceStatus)

	// Delivered text is the stored AI suggestion, verbatim.
	assert.Equal(t, "Sim, temos em estoque.", f.poster.capturedText)
	assert.Equal(t, "APP_USR-token", f.poster.capturedToken)
	assert.Equal(t, "5551234", f.poster.capturedID)

	assert.Equal(t, 1, f.questions.approvedCalls)
	assert.Equal(t, models.ApprovalAuto, f.questions.capturedApprovalType)
	assert.Equal(t, "operator-1", f.questions.capturedActorID)
	assert.Equal(t, 1, f.questions.respondedCalls)
	assert.Zero(t, f.questions.failedCalls)

	assert.Equal(t, 1, f.notifier.approved)
	assert.Equal(t, 1, f.notifier.delivered)
	assert.Equal(t, "Loja do Pedro", f.notifier.capturedSeller)
	assert.True(t, f.notifier.capturedAuto)
}

func TestApproveOperatorTextTakesPrecedence(t *testing.T) {
	f := newFixture(t)

	req := f.request()
	req.Action = ActionRevise
	req.Response = "Temos sim, envio imediato."

	result, err := f.svc.Approve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	assert.Equal(t, "Temos sim, envio imediato.", f.poster.capturedText)
	assert.Equal(t, models.ApprovalRevised, f.questions.capturedApprovalType)
	assert.False(t, f.notifier.capturedAuto)
}

func TestApproveNoResponseAvailableFailsBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	f.questions.question.SuggestedAnswer = nil

	_, err := f.svc.Approve(context.Background(), f.request())
	require.ErrorIs(t, err, apperrors.ErrNoResponseAvailable)
	assert.Zero(t, f.poster.calls)
	assert.Zero(t, f.questions.approvedCalls)
}

func TestApproveUnauthenticated(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.OrgID = uuid.Nil

	_, err := f.svc.Approve(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestApproveQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	f.quota.allowance = &Allowance{Allowed: false, Reason: "limit reached", UpgradeRequired: true}

	_, err := f.svc.Approve(context.Background(), f.request())
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

	var quotaErr *apperrors.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.True(t, quotaErr.UpgradeRequired)
	assert.Zero(t, f.poster.calls)
}

func TestApproveMissingFieldsRejected(t *testing.T) {
	f := newFixture(t)

	req := f.request()
	req.QuestionID = ""
	_, err := f.svc.Approve(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	req = f.request()
	req.Action = ""
	_, err = f.svc.Approve(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestApproveInvalidAction(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Action = "delete"

	_, err := f.svc.Approve(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrInvalidAction)
}

func TestApproveResponseTextBoundaries(t *testing.T) {
	t.Run("exactly 2000 characters accepted", func(t *testing.T) {
		f := newFixture(t)
		req := f.request()
		req.Action = ActionManual
		req.Response = strings.Repeat("a", MaxResponseLength)

		result, err := f.svc.Approve(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.Delivered)
	})

	t.Run("2001 characters rejected", func(t *testing.T) {
		f := newFixture(t)
		req := f.request()
		req.Action = ActionManual
		req.Response = strings.Repeat("a", MaxResponseLength+1)

		_, err := f.svc.Approve(context.Background(), req)
		require.ErrorIs(t, err, apperrors.ErrResponseTooLong)
	})

	t.Run("sanitizes to empty rejected", func(t *testing.T) {
		f := newFixture(t)
		req := f.request()
		req.Action = ActionManual
		req.Response = "  <script>alert('x')</script>  "

		_, err := f.svc.Approve(context.Background(), req)
		require.ErrorIs(t, err, apperrors.ErrEmptyResponse)
		assert.Zero(t, f.poster.calls)
	})
}

func TestApproveNotFoundPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.questions.getErr = apperrors.ErrNotFound

	_, err := f.svc.Approve(context.Background(), f.request())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApproveMalformedQuestionIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.QuestionID = "not-a-uuid"

	_, err := f.svc.Approve(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApproveRespondedQuestionIsIdempotentNoOp(t *testing.T) {
	f := newFixture(t)
	status := 201
	body := `{"id":1}`
	f.questions.question.Status = models.StatusResponded
	f.questions.question.MarketplaceStatus = &status
	f.questions.question.MarketplaceResponse = &body

	result, err := f.svc.Approve(context.Background(), f.request())
	require.NoError(t, err)

	assert.True(t, result.Delivered)
	assert.True(t, result.AlreadyAnswered)
	assert.Equal(t, 201, result.MarketplaceStatus)

	// No submission attempt and no state mutation.
	assert.Zero(t, f.poster.calls)
	assert.Zero(t, f.questions.approvedCalls)
	assert.Zero(t, f.questions.respondedCalls)
	assert.Zero(t, f.notifier.delivered)
}

func TestApproveInactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.accounts.account.Active = false

	_, err := f.svc.Approve(context.Background(), f.request())
	require.ErrorIs(t, err, apperrors.ErrAccountInactive)
	assert.Zero(t, f.poster.calls)
}

func TestApproveMissingCredentials(t *testing.T) {
	f := newFixture(t)
	f.accounts.token = &crypto.EncryptedToken{}

	_, err := f.svc.Approve(context.Background(), f.request())
	require.ErrorIs(t, err, apperrors.ErrMissingCredentials)
}

func TestApproveDecryptionFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	otherCipher, err := crypto.NewTokenCipher("a-different-key")
	require.NoError(t, err)
	f.accounts.token, err = otherCipher.EncryptToken("APP_USR-token")
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), f.request())
	require.ErrorIs(t, err, apperrors.ErrDecryptionFailed)
	assert.Zero(t, f.poster.calls)
	assert.Zero(t, f.questions.approvedCalls)
}

func TestApproveAbsorbsAlreadyAnswered(t *testing.T) {
	f := newFixture(t)
	f.poster.result = &marketplace.Result{
		StatusCode:      http.StatusBadRequest,
		Body:            []byte(`{"message":"Question already answered"}`),
		AlreadyAnswered: true,
	}

	result, err := f.svc.Approve(context.Background(), f.request())
	require.NoError(t, err)

	assert.True(t, result.Delivered)
	assert.True(t, result.AlreadyAnswered)
	// Absorbed duplicates still settle as RESPONDED, never incrementing
	// the retry counter.
	assert.Equal(t, 1, f.questions.respondedCalls)
	assert.Zero(t, f.questions.failedCalls)
}

func TestApproveDeliveryFailureLeavesRecordRetryable(t *testing.T) {
	f := newFixture(t)
	f.poster.result = nil
	f.poster.err = &marketplace.DeliveryError{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte(`{"error":"internal"}`),
		Message:    "internal",
		Retryable:  true,
	}

	result, err := f.svc.Approve(context.Background(), f.request())
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	assert.True(t, result.CanRetry)
	assert.Equal(t, http.StatusInternalServerError, result.MarketplaceStatus)
	assert.Equal(t, 1, f.questions.failedCalls)
	assert.Equal(t, http.StatusInternalServerError, f.questions.capturedStatusCode)
	assert.Equal(t, 1, f.notifier.failed)
	assert.True(t, f.notifier.capturedCanRetry)
}

func TestApproveConcurrentApprovalProceedsToDelivery(t *testing.T) {
	f := newFixture(t)
	f.questions.markApprovedErr = apperrors.ErrConflict
	f.poster.result = &marketplace.Result{
		StatusCode:      http.StatusBadRequest,
		Body:            []byte(`{"message":"Question already answered"}`),
		AlreadyAnswered: true,
	}

	result, err := f.svc.Approve(context.Background(), f.request())
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 1, f.poster.calls)
}

func TestApprovePostSuccessPersistenceErrorStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.questions.markRespondedErr = assertableError("db gone")

	result, err := f.svc.Approve(context.Background(), f.request())
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 1, f.notifier.delivered)
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
