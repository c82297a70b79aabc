// Package auth provides JWT-based authentication for answer-engine.
// It validates tokens issued by the dashboard's identity provider using
// JWKS endpoints.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ClaimsKey is the context key for storing JWT claims.
const ClaimsKey contextKey = "claims"

// Claims is the JWT claims structure issued for dashboard sessions.
// It embeds RegisteredClaims for standard fields (sub, iss, exp) and adds
// the organization the session belongs to.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string   `json:"org,omitempty"`   // Organization UUID
	Email string   `json:"email,omitempty"` // Operator email address
	Roles []string `json:"roles,omitempty"` // Operator roles within the organization
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// OrgIDFromContext extracts the organization ID from JWT claims in context.
// Returns uuid.Nil if not authenticated or the claim is missing/invalid.
func OrgIDFromContext(ctx context.Context) uuid.UUID {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.OrgID == "" {
		return uuid.Nil
	}

	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		return uuid.Nil
	}
	return orgID
}

// ActorFromContext extracts the organization ID and operator ID from JWT
// claims in context. Returns an error if not authenticated.
func ActorFromContext(ctx context.Context) (uuid.UUID, string, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return uuid.Nil, "", fmt.Errorf("authentication required: no claims in context")
	}

	if claims.OrgID == "" {
		return uuid.Nil, "", fmt.Errorf("missing organization ID in JWT claims")
	}

	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid organization ID format: %w", err)
	}

	return orgID, claims.Subject, nil
}
