/**
 * @description
 * This file contains custom middleware for the HTTP router. Authentication
 * verifies an HS256 bearer token and places the verified claims (subject and
 * role) on the request context as a typed struct, so role gating downstream
 * never touches the token itself.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: For JWT parsing and signature verification.
 */

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jawnt/banking-service/internal/app"
)

// Roles known to the service. Superusers operate the ledger itself;
// organization admins manage their own linked external accounts.
const (
	RoleSuperuser = "superuser"
	RoleOrgAdmin  = "org_admin"
)

// Claims are the verified identity attributes extracted from a bearer token.
type Claims struct {
	Subject string
	Role    string
}

// claimsContextKey is a custom type for the context key to avoid collisions.
type claimsContextKey struct{}

// AuthMiddleware creates a middleware that validates HS256 bearer tokens and
// attaches the verified claims to the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			mapClaims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}
			subject, _ := mapClaims["sub"].(string)
			role, _ := mapClaims["role"].(string)
			if subject == "" || role == "" {
				writeError(w, http.StatusUnauthorized, "Token missing subject or role")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, Claims{Subject: subject, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group on the verified role claim. It must run
// after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok || !allowed[claims.Role] {
				writeError(w, http.StatusUnauthorized, "Insufficient role for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the verified claims from the request context.
func GetClaims(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(Claims)
	return claims, ok
}

// RateLimitMiddleware counts each request against the caller's per-minute
// budget for the given scope. An unreachable limiter fails open: dropping
// writes because Redis is down would be worse than briefly unmetered traffic.
func RateLimitMiddleware(limiter app.RateLimiter, scope string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := GetClaims(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, claims.Subject, perMinute, time.Minute)
			if err != nil {
				log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" scope=%s error=%v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if count > perMinute {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please retry later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
