package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safaritrails/booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Roles  []string  `json:"roles"`
}

// HasRole checks if the user has any of the given roles
func (u UserContext) HasRole(roles ...string) bool {
	for _, required := range roles {
		for _, role := range u.Roles {
			if role == required {
				return true
			}
		}
	}
	return false
}

// AuthMiddleware rejects requests without a valid bearer token
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logrus.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Debug("Auth failed: missing authorization header")
			abortUnauthorized(c, "MISSING_AUTH_HEADER", "Authorization header is required")
			return
		}

		userCtx, code, err := parseBearer(jwtService, authHeader)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"path":  c.Request.URL.Path,
				"ip":    c.ClientIP(),
				"code":  code,
				"error": err.Error(),
			}).Info("Auth failed")
			abortUnauthorized(c, code, err.Error())
			return
		}

		c.Set(UserContextKey, userCtx)
		c.Next()
	}
}

// OptionalAuthMiddleware sets the user context when a valid token is present
// and lets anonymous requests through (guest checkout). A malformed or
// invalid token is still rejected.
func OptionalAuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		userCtx, code, err := parseBearer(jwtService, authHeader)
		if err != nil {
			abortUnauthorized(c, code, err.Error())
			return
		}

		c.Set(UserContextKey, userCtx)
		c.Next()
	}
}

func parseBearer(jwtService *jwt.Service, header string) (UserContext, string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return UserContext{}, "INVALID_AUTH_FORMAT", errors.New("Invalid authorization header format. Expected: Bearer <token>")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return UserContext{}, "INVALID_AUTH_FORMAT", errors.New("Token cannot be empty")
	}

	claims, err := jwtService.ValidateAccessToken(token)
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return UserContext{}, "TOKEN_EXPIRED", errors.New("Access token has expired")
		}
		return UserContext{}, "INVALID_TOKEN", errors.New("Invalid access token")
	}

	return UserContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, "", nil
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": message,
		"details": gin.H{"code": code},
	})
}

// RequireRole allows the request only if the user has one of the roles.
// Must be used after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortUnauthorized(c, "MISSING_USER_CONTEXT", "Authentication required")
			return
		}

		if !userCtx.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have permission to access this resource",
				"details": gin.H{"requiredRoles": roles},
			})
			return
		}

		c.Next()
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}
