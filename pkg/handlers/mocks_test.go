package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mlagent/answer-engine/pkg/auth"
	"github.com/mlagent/answer-engine/pkg/models"
	"github.com/mlagent/answer-engine/pkg/services"
)

// mockAuthService returns fixed claims for every request, or an error when
// failWith is set.
type mockAuthService struct {
	claims   *auth.Claims
	failWith error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if m.failWith != nil {
		return nil, "", m.failWith
	}
	return m.claims, "test-token", nil
}

func (m *mockAuthService) RequireOrgID(claims *auth.Claims) error {
	if claims == nil || claims.OrgID == "" {
		return errors.New("missing organization ID in JWT claims")
	}
	return nil
}

func sessionClaims(orgID uuid.UUID, actorID string) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: actorID},
		OrgID:            orgID.String(),
	}
}

// identityTenant skips the DB-scoped connection; handler tests exercise the
// HTTP layer against mocked repositories.
func identityTenant(next http.HandlerFunc) http.HandlerFunc {
	return next
}

type mockApprovalService struct {
	result *services.ApprovalResult
	err    error

	calls []*services.ApprovalRequest
}

func (m *mockApprovalService) Approve(ctx context.Context, req *services.ApprovalRequest) (*services.ApprovalResult, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockQuestionRepository struct {
	question *models.Question
	err      error
}

func (m *mockQuestionRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Question, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.question, nil
}

func (m *mockQuestionRepository) MarkApproved(ctx context.Context, id uuid.UUID, approvalType models.ApprovalType, actorID, answer string) error {
	return nil
}

func (m *mockQuestionRepository) MarkResponded(ctx context.Context, id uuid.UUID, statusCode int, payload string) error {
	return nil
}

func (m *mockQuestionRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, statusCode int, payload string) error {
	return nil
}

func (m *mockQuestionRepository) CountApprovedSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	return 0, nil
}

func (m *mockQuestionRepository) NextDailySequence(ctx context.Context, orgID uuid.UUID, day time.Time) (int, error) {
	return 1, nil
}
