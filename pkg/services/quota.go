package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlagent/answer-engine/pkg/repositories"
)

// Allowance is the result of a quota check.
type Allowance struct {
	Allowed         bool
	Reason          string
	UpgradeRequired bool
}

// QuotaService gates question actions by the organization's subscription
// plan.
type QuotaService interface {
	// CheckQuestionAllowance reports whether the organization may perform
	// one more question approval this calendar month.
	CheckQuestionAllowance(ctx context.Context, orgID uuid.UUID) (*Allowance, error)
}

type quotaService struct {
	orgs      repositories.OrganizationRepository
	questions repositories.QuestionRepository
	logger    *zap.Logger
}

// NewQuotaService creates a new quota service.
func NewQuotaService(orgs repositories.OrganizationRepository, questions repositories.QuestionRepository, logger *zap.Logger) QuotaService {
	return &quotaService{
		orgs:      orgs,
		questions: questions,
		logger:    logger,
	}
}

func (s *quotaService) CheckQuestionAllowance(ctx context.Context, orgID uuid.UUID) (*Allowance, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	quota := org.Plan.MonthlyQuestionQuota()
	if quota < 0 {
		return &Allowance{Allowed: true}, nil
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	used, err := s.questions.CountApprovedSince(ctx, orgID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count monthly usage: %w", err)
	}

	if used >= quota {
		s.logger.Info("Question quota exhausted",
			zap.String("org_id", orgID.String()),
			zap.String("plan", string(org.Plan)),
			zap.Int("used", used),
			zap.Int("quota", quota))
		return &Allowance{
			Allowed:         false,
			Reason:          fmt.Sprintf("monthly limit of %d questions reached on the %s plan", quota, org.Plan),
			UpgradeRequired: true,
		}, nil
	}

	return &Allowance{Allowed: true}, nil
}

// Ensure quotaService implements QuotaService at compile time.
var _ QuotaService = (*quotaService)(nil)
