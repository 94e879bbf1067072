package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"callcenter/internal/models"
	"callcenter/internal/response"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

// AuthMiddleware validates the HS256 access token and stores user_id and
// role claims in the gin context. Tokens are issued elsewhere.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			// browsers cannot set headers on websocket upgrades
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, "NO_AUTH_HEADER", "Authorization required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN_CLAIMS", "Cannot read token claims")
			return
		}

		userID, ok := claims["user_id"].(float64)
		if !ok || userID <= 0 {
			abort(c, http.StatusUnauthorized, "INVALID_USER_ID", "Cannot extract user_id")
			return
		}
		role, _ := claims["role"].(string)
		if role == "" {
			role = models.RoleCustomer
		}

		c.Set(UserIDKey, uint(userID))
		c.Set(RoleKey, role)
		c.Next()
	}
}

// RequireRole lets the request through only for one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "FORBIDDEN", "Insufficient role")
	}
}

// Actor returns the authenticated caller as a models.User with ID and Role set.
func Actor(c *gin.Context) models.User {
	var u models.User
	u.ID = c.GetUint(UserIDKey)
	u.Role = c.GetString(RoleKey)
	return u
}

// IssueToken signs an access token; used by the seeder and tests.
func IssueToken(secret []byte, userID uint, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
	})
	return token.SignedString(secret)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, response.ErrorResponse{Code: code, Message: message})
}
