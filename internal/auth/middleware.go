package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

const claimsKey = "auth_claims"

// ServiceAuth validates bearer tokens and the orchestrator webhook key.
type ServiceAuth struct {
	tokens        *TokenManager
	webhookKeyHash string
}

// NewServiceAuth constructs middleware.
func NewServiceAuth(tokens *TokenManager, webhookKeyHash string) *ServiceAuth {
	return &ServiceAuth{tokens: tokens, webhookKeyHash: webhookKeyHash}
}

// RequireToken enforces a valid service token carrying the scope.
func (m *ServiceAuth) RequireToken(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperrors.NewUnauthorized("missing authorization header")
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperrors.NewUnauthorized("invalid authorization header")
		}
		claims, err := m.tokens.ParseToken(parts[1])
		if err != nil {
			return apperrors.NewUnauthorized("invalid token")
		}
		if scope != "" && !claims.HasScope(scope) {
			return apperrors.NewDomainError("FORBIDDEN", "insufficient scope", fiber.StatusForbidden, map[string]any{
				"required": scope,
			})
		}
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// RequireWebhookKey authenticates orchestrator callbacks via a shared key
// compared against its bcrypt hash. An empty configured hash disables the
// check, for development only.
func (m *ServiceAuth) RequireWebhookKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.webhookKeyHash == "" {
			return c.Next()
		}
		key := c.Get("X-Api-Key")
		if key == "" {
			return apperrors.NewUnauthorized("missing api key")
		}
		if err := CompareAPIKey(m.webhookKeyHash, key); err != nil {
			return apperrors.NewUnauthorized("invalid api key")
		}
		return c.Next()
	}
}

// ClaimsFromContext retrieves the authenticated service claims.
func ClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	val := c.Locals(claimsKey)
	if val == nil {
		return nil, false
	}
	claims, ok := val.(*Claims)
	return claims, ok
}
