package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"photoprint-backend/internal/config"
	"photoprint-backend/internal/models"
)

const (
	UserIDKey       = "user_id"
	RoleKey         = "role"
	FranchiseeIDKey = "franchisee_id"

	RoleAdmin      = "admin"
	RoleFranchisee = "franchisee"
)

// AuthMiddleware validates the Bearer token and stores the caller identity
// on the request context. Tokens carry sub, role, and for franchisee
// callers a franchisee_id claim.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			if cfg.JWTSecret == "" {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			message := "invalid token"
			if err != nil && strings.Contains(err.Error(), "token is expired") {
				message = "token has expired"
			}
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid token", Message: message})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid token claims"})
			c.Abort()
			return
		}
		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing user id in token"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, sub)
		if role, ok := claims["role"].(string); ok {
			c.Set(RoleKey, role)
		}
		if fid, ok := claims["franchisee_id"].(float64); ok {
			c.Set(FranchiseeIDKey, int64(fid))
		}
		c.Next()
	}
}

// RequireRole gates a route group to one role. Admin passes everywhere.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, _ := c.Get(RoleKey)
		r, _ := got.(string)
		if r != role && r != RoleAdmin {
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerFranchiseeID returns the franchisee scope bound to the request, or
// zero for admin callers.
func CallerFranchiseeID(c *gin.Context) int64 {
	v, ok := c.Get(FranchiseeIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}
