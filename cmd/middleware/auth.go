package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gathered/internal/dto"
)

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"

	actorIDKey   = "actor_id"
	actorRoleKey = "actor_role"
)

func abort(c *gin.Context, code int, desc string) {
	c.AbortWithStatusJSON(code, dto.Response{
		Status: "error",
		Error:  &dto.Error{Code: dto.Unauthorized, Desc: desc},
	})
}

// AuthMiddleware validates an HS256 bearer token carrying "sub" (uuid) and "role".
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abort(c, http.StatusUnauthorized, "Missing or malformed Authorization header")
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, "Invalid token claims")
			return
		}
		sub, _ := claims.GetSubject()
		id, err := uuid.Parse(sub)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid token subject")
			return
		}
		role, _ := claims["role"].(string)
		if role != RoleAdmin && role != RoleStudent {
			abort(c, http.StatusUnauthorized, "Invalid token role")
			return
		}

		c.Set(actorIDKey, id)
		c.Set(actorRoleKey, role)
		c.Next()
	}
}

func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(actorRoleKey) != role {
			abort(c, http.StatusForbidden, "This action requires the "+role+" role")
			return
		}
		c.Next()
	}
}

// Actor returns the authenticated user id set by AuthMiddleware.
func Actor(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(actorIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func Role(c *gin.Context) string {
	return c.GetString(actorRoleKey)
}

// IssueToken signs a token AuthMiddleware accepts.
func IssueToken(secret string, id uuid.UUID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  id.String(),
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
