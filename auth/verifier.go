package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"net/http"
	"strings"
)

var _ contract.IdentityVerifier = (*JWTVerifier)(nil)

// Reasons sent to a client whose handshake failed.
const (
	ReasonMissingCredential = "Authentication required"
	ReasonInvalidCredential = "Invalid or expired token"
)

// JWTVerifier resolves the bearer credential of a handshake into a subject.
type JWTVerifier struct {
	tokens *TokenManager
}

func NewJWTVerifier(tokens *TokenManager) *JWTVerifier {
	return &JWTVerifier{tokens: tokens}
}

// Verify never returns a partial subject: either the token is valid and the
// subject carries a non-empty id, or the error wraps ErrAuthRejected.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (domain.Subject, error) {
	if err := ctx.Err(); err != nil {
		return domain.Subject{}, err
	}
	if credential == "" {
		return domain.Subject{}, fmt.Errorf("%w: %s", errors.ErrAuthRejected, ReasonMissingCredential)
	}
	claims, err := v.tokens.ValidateToken(credential)
	if err != nil {
		return domain.Subject{}, fmt.Errorf("%w: %s: %v", errors.ErrAuthRejected, ReasonInvalidCredential, err)
	}
	return claims.Identity(), nil
}

// ExtractCredential reads the handshake token from the "token" query
// parameter first, then from the Authorization header.
// The "Bearer " prefix is optional.
func ExtractCredential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// RejectionReason returns the message shown to a client for a failed verification.
func RejectionReason(credential string) string {
	if credential == "" {
		return ReasonMissingCredential
	}
	return ReasonInvalidCredential
}
