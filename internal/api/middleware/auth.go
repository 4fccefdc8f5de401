package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/windspot/windspot/internal/api/models"
	"github.com/windspot/windspot/internal/auth"
)

type operatorKey struct{}

// RequireScope guards operator endpoints: the request must carry a valid
// bearer token that grants scope. Without a configured signing key every
// request is refused with 503.
func RequireScope(tokens *auth.TokenService, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil || !tokens.Enabled() {
				writeProblem(w, r, models.NewServiceUnavailable(GetRequestID(r.Context()),
					"operator access is not configured"))
				return
			}

			token, detail := bearerToken(r)
			if token == "" {
				writeProblem(w, r, models.NewUnauthorized(GetRequestID(r.Context()), detail))
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				detail := "invalid operator token"
				if errors.Is(err, auth.ErrTokenExpired) {
					detail = "operator token has expired"
				}
				writeProblem(w, r, models.NewUnauthorized(GetRequestID(r.Context()), detail))
				return
			}

			if !claims.HasScope(scope) {
				writeProblem(w, r, models.NewForbidden(GetRequestID(r.Context()),
					"operator token lacks the "+scope+" scope"))
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token, or returns a reason it is missing.
func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "invalid authorization header format"
	}

	token = strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeProblem lives here rather than in response to avoid an import cycle.
func writeProblem(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetOperator returns the verified operator claims, or nil outside RequireScope.
func GetOperator(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(operatorKey{}).(*auth.Claims)
	return claims
}

// GetOperatorSubject returns the operator token subject, or "".
func GetOperatorSubject(ctx context.Context) string {
	if claims := GetOperator(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
