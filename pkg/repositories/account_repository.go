package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/crypto"
	"github.com/mlagent/answer-engine/pkg/database"
	"github.com/mlagent/answer-engine/pkg/models"
)

// AccountRepository defines data access for marketplace accounts.
// Credentials are returned as the encrypted envelope; decryption is the
// service layer's job.
type AccountRepository interface {
	// GetByID retrieves an account by id within an organization along with
	// its encrypted credential envelope. Envelope fields are empty strings
	// when no credentials are stored.
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Account, *crypto.EncryptedToken, error)
}

type accountRepository struct{}

// NewAccountRepository creates a new account repository.
func NewAccountRepository() AccountRepository {
	return &accountRepository{}
}

func (r *accountRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Account, *crypto.EncryptedToken, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, org_id, seller_name, marketplace_user_id, active,
		       token_ciphertext, token_iv, token_auth_tag, created_at, updated_at
		FROM marketplace_accounts
		WHERE org_id = $1 AND id = $2`

	var account models.Account
	var token crypto.EncryptedToken
	var ciphertext, iv, authTag *string
	err := scope.Conn.QueryRow(ctx, query, orgID, id).Scan(
		&account.ID,
		&account.OrgID,
		&account.SellerName,
		&account.MarketplaceUserID,
		&account.Active,
		&ciphertext,
		&iv,
		&authTag,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, apperrors.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to get account: %w", err)
	}

	if ciphertext != nil {
		token.Ciphertext = *ciphertext
	}
	if iv != nil {
		token.IV = *iv
	}
	if authTag != nil {
		token.AuthTag = *authTag
	}

	return &account, &token, nil
}

// Ensure accountRepository implements AccountRepository at compile time.
var _ AccountRepository = (*accountRepository)(nil)
