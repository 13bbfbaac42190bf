package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const subjectKey contextKey = "subject"

// WithSubject returns a copy of ctx carrying the authenticated subject.
func WithSubject(ctx context.Context, subject domain.Subject) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext returns the subject injected by RequireSubject.
func SubjectFromContext(ctx context.Context) (domain.Subject, bool) {
	subject, ok := ctx.Value(subjectKey).(domain.Subject)
	return subject, ok && subject.ID != ""
}

// RequireSubject rejects requests without a valid "Bearer <token>" header.
// The verified subject is injected into the request context for the handlers.
func RequireSubject(log *slog.Logger, verifier contract.IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "Authorization token is missing or invalid")
				return
			}
			subject, err := verifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				log.Debug("Rejected request", "path", r.URL.Path, "error", err)
				unauthorized(w, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
