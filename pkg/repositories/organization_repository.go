package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/database"
	"github.com/mlagent/answer-engine/pkg/models"
)

// OrganizationRepository defines data access for organizations.
type OrganizationRepository interface {
	// GetByID retrieves an organization by id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

type organizationRepository struct{}

// NewOrganizationRepository creates a new organization repository.
func NewOrganizationRepository() OrganizationRepository {
	return &organizationRepository{}
}

func (r *organizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, name, plan, created_at, updated_at
		FROM organizations
		WHERE id = $1`

	var org models.Organization
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Plan,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// Ensure organizationRepository implements OrganizationRepository at compile time.
var _ OrganizationRepository = (*organizationRepository)(nil)
