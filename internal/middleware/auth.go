package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"schematic-service/internal/logger"
	"schematic-service/internal/policy"
)

const callerKey = "caller"

// AuthMiddleware turns a bearer token into the caller identity used by the
// visibility policy. Token minting lives elsewhere; this side only verifies.
type AuthMiddleware struct {
	secret []byte
	log    *logger.Logger
}

// NewAuthMiddleware creates an AuthMiddleware verifying HS256 tokens signed
// with the given secret.
func NewAuthMiddleware(secret string, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), log: log}
}

// RequireAuth rejects requests without a valid caller identity.
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := m.callerFromHeader(c)
		if err != nil || caller == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": true, "message": "missing or invalid token",
			})
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// OptionalAuth attaches the caller identity when a valid token is present and
// lets the request through anonymously otherwise.
func (m *AuthMiddleware) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := m.callerFromHeader(c)
		if err != nil {
			m.log.Debug("invalid token on optional-auth route, continuing anonymously",
				"path", c.Path(), "error", err)
		}
		if caller != nil {
			c.Locals(callerKey, caller)
		}
		return c.Next()
	}
}

// CallerFromCtx returns the caller identity attached by the auth middleware,
// or nil for an anonymous request.
func CallerFromCtx(c *fiber.Ctx) *policy.Caller {
	caller, _ := c.Locals(callerKey).(*policy.Caller)
	return caller
}

func (m *AuthMiddleware) callerFromHeader(c *fiber.Ctx) (*policy.Caller, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return nil, nil
	}
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return nil, errors.New("malformed authorization header")
	}
	return m.ParseToken(header[7:])
}

// ParseToken verifies a token string and extracts the {id, role} claims.
func (m *AuthMiddleware) ParseToken(tokenString string) (*policy.Caller, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "token verification failed")
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	id, ok := claims["id"].(float64)
	if !ok {
		return nil, errors.New("token is missing the id claim")
	}
	role, _ := claims["role"].(string)
	return &policy.Caller{ID: uint(id), Role: role}, nil
}
