package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims for agent API tokens
type Claims struct {
	Actor string `json:"actor"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

var jwtSecret string

// SetJWTSecret configures the signing secret for token validation.
// An empty secret disables auth entirely (local mode).
func SetJWTSecret(secret string) {
	jwtSecret = secret
}

// ValidateToken parses and validates a signed agent token
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// AuthMiddleware validates JWT authentication tokens and stores the
// acting identity in the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Local mode runs without tokens
		if jwtSecret == "" {
			c.Set("actor", "local")
			c.Set("is_admin", true)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format. Use: Bearer <token>",
				"code":  "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		claims, err := ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		actor := claims.Actor
		if actor == "" {
			actor = claims.Subject
		}
		c.Set("actor", actor)
		c.Set("is_admin", claims.Admin)

		c.Next()
	}
}

// GetActor extracts the acting identity from the request context
func GetActor(c *gin.Context) string {
	actor, exists := c.Get("actor")
	if !exists {
		return "unknown"
	}
	if s, ok := actor.(string); ok && s != "" {
		return s
	}
	return "unknown"
}
