package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan is an organization's subscription tier.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// MonthlyQuestionQuota returns how many question approvals the plan permits
// per calendar month. A negative value means unlimited.
func (p Plan) MonthlyQuestionQuota() int {
	switch p {
	case PlanPro:
		return 1000
	case PlanEnterprise:
		return -1
	default:
		return 50
	}
}

// Organization is the tenant boundary. Every pipeline query is scoped by
// organization id.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
