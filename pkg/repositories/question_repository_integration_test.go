//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/database"
	"github.com/mlagent/answer-engine/pkg/models"
	"github.com/mlagent/answer-engine/pkg/repositories"
	"github.com/mlagent/answer-engine/pkg/testhelpers"
)

// tenantCtx opens a tenant-scoped connection for orgID and returns a context
// carrying it, the way the tenant middleware does per request.
func tenantCtx(t *testing.T, db *database.DB, orgID uuid.UUID) (context.Context, func()) {
	t.Helper()

	scope, err := db.WithTenant(context.Background(), orgID)
	require.NoError(t, err)

	return database.SetTenantScope(context.Background(), scope), scope.Close
}

// Seeding runs on the pool connection, outside any tenant scope. Records are
// normally created by the ingestion process, so the repository under test has
// no insert methods.

func createOrg(t *testing.T, db *database.DB, name string) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(context.Background(),
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func createAccount(t *testing.T, db *database.DB, orgID uuid.UUID, mlUserID int64) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(context.Background(), `
		INSERT INTO marketplace_accounts (org_id, seller_name, marketplace_user_id)
		VALUES ($1, $2, $3) RETURNING id`,
		orgID, "Test Seller", mlUserID).Scan(&id)
	require.NoError(t, err)
	return id
}

func createQuestion(t *testing.T, db *database.DB, orgID, accountID uuid.UUID, status models.QuestionStatus) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(context.Background(), `
		INSERT INTO questions (org_id, account_id, marketplace_question_id, question_text, suggested_answer, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		orgID, accountID, "MLQ-"+uuid.NewString(), "Does it ship to Porto Alegre?",
		"Yes, we ship nationwide.", string(status)).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestGetByID_TenantIsolation(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := repositories.NewQuestionRepository()

	orgA := createOrg(t, testDB.DB, "Org A")
	orgB := createOrg(t, testDB.DB, "Org B")
	accountA := createAccount(t, testDB.DB, orgA, 1001)
	accountB := createAccount(t, testDB.DB, orgB, 1002)
	questionA := createQuestion(t, testDB.DB, orgA, accountA, models.StatusPendingApproval)
	questionB := createQuestion(t, testDB.DB, orgB, accountB, models.StatusPendingApproval)

	ctx, closeScope := tenantCtx(t, testDB.DB, orgA)
	defer closeScope()

	// Own question is visible.
	got, err := repo.GetByID(ctx, orgA, questionA)
	require.NoError(t, err)
	assert.Equal(t, questionA, got.ID)
	assert.Equal(t, orgA, got.OrgID)

	// Another tenant's question and a nonexistent id must be
	// indistinguishable: same sentinel error, no data leaked.
	_, crossTenantErr := repo.GetByID(ctx, orgA, questionB)
	require.ErrorIs(t, crossTenantErr, apperrors.ErrNotFound)

	_, missingErr := repo.GetByID(ctx, orgA, uuid.New())
	require.ErrorIs(t, missingErr, apperrors.ErrNotFound)

	assert.Equal(t, missingErr, crossTenantErr)
}

func TestMarkApproved_SecondApprovalConflicts(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := repositories.NewQuestionRepository()

	org := createOrg(t, testDB.DB, "Approval Org")
	account := createAccount(t, testDB.DB, org, 2001)
	question := createQuestion(t, testDB.DB, org, account, models.StatusPendingApproval)

	ctx, closeScope := tenantCtx(t, testDB.DB, org)
	defer closeScope()

	err := repo.MarkApproved(ctx, question, models.ApprovalAuto, "user-1", "Yes, we ship nationwide.")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, org, question)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, "user-1", *got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)

	// APPROVED is not an approvable status, so a second approval of the same
	// question loses the race.
	err = repo.MarkApproved(ctx, question, models.ApprovalAuto, "user-2", "Yes, we ship nationwide.")
	require.ErrorIs(t, err, apperrors.ErrConflict)

	// The winner's metadata is untouched.
	got, err = repo.GetByID(ctx, org, question)
	require.NoError(t, err)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, "user-1", *got.ApprovedBy)
}

func TestMarkApproved_RetryFromFailed(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := repositories.NewQuestionRepository()

	org := createOrg(t, testDB.DB, "Retry Org")
	account := createAccount(t, testDB.DB, org, 3001)
	question := createQuestion(t, testDB.DB, org, account, models.StatusFailed)

	ctx, closeScope := tenantCtx(t, testDB.DB, org)
	defer closeScope()

	err := repo.MarkApproved(ctx, question, models.ApprovalManual, "user-1", "Manual answer.")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, org, question)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestMarkApproved_RespondedIsFinal(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := repositories.NewQuestionRepository()

	org := createOrg(t, testDB.DB, "Responded Org")
	account := createAccount(t, testDB.DB, org, 4001)
	question := createQuestion(t, testDB.DB, org, account, models.StatusPendingApproval)

	ctx, closeScope := tenantCtx(t, testDB.DB, org)
	defer closeScope()

	require.NoError(t, repo.MarkApproved(ctx, question, models.ApprovalAuto, "user-1", "Answer."))
	require.NoError(t, repo.MarkResponded(ctx, question, 200, `{"status":"ANSWERED"}`))

	err := repo.MarkApproved(ctx, question, models.ApprovalAuto, "user-1", "Answer.")
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMarkFailed_ThenRespondedResetsRetries(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := repositories.NewQuestionRepository()

	org := createOrg(t, testDB.DB, "Failure Org")
	account := createAccount(t, testDB.DB, org, 5001)
	question := createQuestion(t, testDB.DB, org, account, models.StatusPendingApproval)

	ctx, closeScope := tenantCtx(t, testDB.DB, org)
	defer closeScope()

	require.NoError(t, repo.MarkApproved(ctx, question, models.ApprovalAuto, "user-1", "Answer."))
	require.NoError(t, repo.MarkFailed(ctx, question, "network failure", 0, ""))

	got, err := repo.GetByID(ctx, org, question)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "network failure", *got.FailureReason)
	assert.Nil(t, got.MarketplaceStatus, "status code 0 is stored as NULL")

	require.NoError(t, repo.MarkApproved(ctx, question, models.ApprovalAuto, "user-1", "Answer."))
	require.NoError(t, repo.MarkResponded(ctx, question, 200, `{"status":"ANSWERED"}`))

	got, err = repo.GetByID(ctx, org, question)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResponded, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	require.NotNil(t, got.AnsweredAt)
}

func TestCountApprovedSince(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := repositories.NewQuestionRepository()

	org := createOrg(t, testDB.DB, "Quota Org")
	account := createAccount(t, testDB.DB, org, 6001)

	ctx, closeScope := tenantCtx(t, testDB.DB, org)
	defer closeScope()

	since := time.Now().Add(-time.Minute)

	count, err := repo.CountApprovedSince(ctx, org, since)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	for i := 0; i < 3; i++ {
		q := createQuestion(t, testDB.DB, org, account, models.StatusPendingApproval)
		require.NoError(t, repo.MarkApproved(ctx, q, models.ApprovalAuto, "user-1", fmt.Sprintf("Answer %d.", i)))
	}

	count, err = repo.CountApprovedSince(ctx, org, since)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNextDailySequence(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := repositories.NewQuestionRepository()

	orgA := createOrg(t, testDB.DB, "Sequence Org A")
	orgB := createOrg(t, testDB.DB, "Sequence Org B")

	day := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)

	ctxA, closeA := tenantCtx(t, testDB.DB, orgA)
	defer closeA()

	for want := 1; want <= 3; want++ {
		seq, err := repo.NextDailySequence(ctxA, orgA, day)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	// A new day starts a fresh counter.
	seq, err := repo.NextDailySequence(ctxA, orgA, nextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	// Counters are per organization.
	ctxB, closeB := tenantCtx(t, testDB.DB, orgB)
	defer closeB()

	seq, err = repo.NextDailySequence(ctxB, orgB, day)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}
