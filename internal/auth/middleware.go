package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/deskline/helpdesk-service/internal/domain"
	apperrors "github.com/deskline/helpdesk-service/pkg/util/errorutil"
)

// IdentityLocalsKey is the fiber locals key holding the verified domain.Identity.
const IdentityLocalsKey = "auth_identity"

// AuthMiddleware validates bearer tokens and stores the verified identity.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	identity, err := m.tokens.Verify(token)
	if err != nil {
		return err
	}
	c.Locals(IdentityLocalsKey, identity)
	return c.Next()
}

// HandleQueryToken authenticates clients that cannot set headers, such as
// browser websockets, via the "token" query parameter. The Authorization
// header still wins when present.
func (m *AuthMiddleware) HandleQueryToken(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) != "" {
		return m.Handle(c)
	}
	identity, err := m.tokens.Verify(c.Query("token"))
	if err != nil {
		return err
	}
	c.Locals(IdentityLocalsKey, identity)
	return c.Next()
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthenticated("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewInvalidCredential("invalid authorization header", nil)
	}
	return strings.TrimSpace(parts[1]), nil
}

// IdentityFromContext retrieves the authenticated caller.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(IdentityLocalsKey).(domain.Identity)
	return identity, ok
}
