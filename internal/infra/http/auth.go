package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"glaze-bot/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims — утверждения токена администратора: участник, его роли и признак администратора группы.
type Claims struct {
	jwt.RegisteredClaims
	MemberID string   `json:"member_id"`
	Roles    []string `json:"roles,omitempty"`
	Admin    bool     `json:"admin,omitempty"`
}

// Actor переводит утверждения в участника домена.
func (c Claims) Actor() domain.Actor {
	roles := make([]domain.RoleID, len(c.Roles))
	for i, r := range c.Roles {
		roles[i] = domain.RoleID(r)
	}
	return domain.Actor{ID: domain.MemberID(c.MemberID), RoleIDs: roles, Administrator: c.Admin}
}

// IssueToken подписывает HS256 токен на ttl.
func IssueToken(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken проверяет подпись и срок действия токена.
func ParseToken(raw string, secret []byte) (Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid || claims.MemberID == "" {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}

type ctxKey string

const claimsKey ctxKey = "claims"

// BearerAuthMiddleware пропускает только запросы с действующим токеном в Authorization.
func BearerAuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				WriteError(w, http.StatusUnauthorized, ErrMissingToken)
				return
			}
			claims, err := ParseToken(strings.TrimSpace(raw), secret)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// ClaimsFrom достаёт утверждения, положенные BearerAuthMiddleware.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет v со статусом status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
