// Package approval issues and parses the signed tokens embedded in approval links.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that are malformed or not signed by us.
var ErrInvalidToken = errors.New("approval: invalid token")

// Claims carries the workflow and job an approval token belongs to.
type Claims struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	JobKey     string    `json:"job_key"`
	jwt.RegisteredClaims
}

// Issuer signs and parses approval tokens.
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer creates an Issuer using an HMAC secret.
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("approval secret cannot be empty")
	}
	return &Issuer{secret: []byte(secret), issuer: "job-agent"}, nil
}

// Issue signs a token for one approval cycle. Each call yields a distinct token.
func (i *Issuer) Issue(workflowID uuid.UUID, jobKey string, sentAt, expiresAt time.Time) (string, error) {
	claims := &Claims{
		WorkflowID: workflowID,
		JobKey:     jobKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(sentAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign approval token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and returns the claims. Expiry is deliberately
// not checked here: the engine compares against the persisted record using its
// own clock, so an expired token still resolves to its workflow.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.WorkflowID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing workflow id", ErrInvalidToken)
	}
	if claims.Issuer != i.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	return claims, nil
}
