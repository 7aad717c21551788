package common

import (
	"context"
	"log"
	"net/http"
	"strings"
)

type contextKey string

const authUserContextKey contextKey = "authUser"

// AuthenticatedUser represents the JWT-derived principal.
type AuthenticatedUser struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	StaffType string `json:"staffType,omitempty"`
}

// ContextWithUser stores the authenticated user into context.
func ContextWithUser(ctx context.Context, user AuthenticatedUser) context.Context {
	return context.WithValue(ctx, authUserContextKey, user)
}

// UserFromContext extracts the authenticated user from context.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	user, ok := ctx.Value(authUserContextKey).(AuthenticatedUser)
	return user, ok
}

// HasAnyRole はロール名または職員区分のいずれかが許可リストに含まれるか判定する。
// 元システムの authorizeRole(['admin','admissions']) と同じ規則:
// role が一致するか、staffType が一致すれば許可。
func (u AuthenticatedUser) HasAnyRole(allowed []string) bool {
	for _, candidate := range allowed {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if strings.EqualFold(u.Role, candidate) || strings.EqualFold(u.StaffType, candidate) {
			return true
		}
	}
	return false
}

// RequireRoles は認証済みユーザーが許可ロールを持つことを要求するミドルウェア。
// 認証ミドルウェアの後段に置くこと。未認証は 401、ロール不足は 403。
func RequireRoles(logger *log.Logger, allowed []string) func(http.Handler) http.Handler {
	roles := append([]string(nil), allowed...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteJSON(logger, w, http.StatusUnauthorized, map[string]string{"error": "認証が必要です"})
				return
			}
			if !user.HasAnyRole(roles) {
				WriteJSON(logger, w, http.StatusForbidden, map[string]string{"error": "この操作を行う権限がありません"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
