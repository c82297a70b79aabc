package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a connected marketplace seller account. The access token is
// stored encrypted (ciphertext + IV + auth tag columns) and surfaced
// separately by the repository so the model never carries plaintext.
type Account struct {
	ID                uuid.UUID `json:"id"`
	OrgID             uuid.UUID `json:"org_id"`
	SellerName        string    `json:"seller_name"`
	MarketplaceUserID int64     `json:"marketplace_user_id"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
