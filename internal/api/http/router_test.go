package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/api/dto"
	"github.com/deskline/helpdesk-service/internal/api/http/handlers"
	"github.com/deskline/helpdesk-service/internal/auth"
	"github.com/deskline/helpdesk-service/internal/config"
	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/events"
	"github.com/deskline/helpdesk-service/internal/observability"
	"github.com/deskline/helpdesk-service/internal/realtime"
	"github.com/deskline/helpdesk-service/internal/repository"
	"github.com/deskline/helpdesk-service/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	hub    *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	metrics := observability.NewMetrics()
	hub := realtime.NewHub(logger)
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, hub, metrics, logger).RegisterHandlers()

	authCfg := config.AuthConfig{
		JWTSecret:           "router-test",
		BcryptCost:          4,
		BootstrapAdminEmail: "admin@example.com",
		BootstrapAdminPass:  "admin-pass",
	}
	tokens := auth.NewTokenManager(authCfg.JWTSecret, 5)
	authService := service.NewAuthService(authCfg, store.Users(), tokens, logger)
	require.NoError(t, authService.EnsureBootstrapAdmin(context.Background(), authCfg))

	lifecycle := service.NewTicketLifecycle(service.LifecycleDependencies{
		TicketRepo: store.Tickets(),
		ScoreRepo:  store.Scores(),
		Logger:     logger,
	})
	gateway := service.NewTicketGateway(lifecycle, dispatcher, logger)
	validator := dto.NewValidator()

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{AllowedOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-service", "test", handlers.HealthDependencies{Metrics: metrics}),
		Auth:           handlers.NewAuthHandler(authService, validator),
		Tickets:        handlers.NewTicketsHandler(gateway, validator),
		Technicians:    handlers.NewTechniciansHandler(lifecycle, hub),
		Realtime:       handlers.NewRealtimeHandler(hub, 16, logger),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens, hub: hub}
}

func (s *testServer) token(t *testing.T, subject string, role domain.Role) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(subject, role)
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, target, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(r apiResponse) string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	sub := &collector{id: "observer"}
	srv.hub.Register(sub)

	user := srv.token(t, "user-u", domain.RoleUser)
	techA := srv.token(t, "tech-a", domain.RoleTechnician)
	techB := srv.token(t, "tech-b", domain.RoleTechnician)

	status, resp := srv.do(t, "POST", "/api/tickets", user, map[string]any{"title": "Wifi broken", "priority": "HIGH"})
	require.Equal(t, fiber.StatusCreated, status, errorCode(resp))
	var ticket dto.TicketResponse
	require.NoError(t, json.Unmarshal(resp.Data, &ticket))
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "user-u", ticket.CreatedBy)

	status, resp = srv.do(t, "POST", "/api/tickets/"+ticket.ID+"/accept", user, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(resp))

	status, resp = srv.do(t, "POST", "/api/tickets/"+ticket.ID+"/accept", techA, nil)
	require.Equal(t, fiber.StatusOK, status, errorCode(resp))

	status, resp = srv.do(t, "POST", "/api/tickets/"+ticket.ID+"/claim", techB, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ALREADY_CLAIMED", errorCode(resp))

	status, resp = srv.do(t, "PATCH", "/api/tickets/"+ticket.ID+"/status", techA, map[string]string{"status": "RESOLVED"})
	require.Equal(t, fiber.StatusOK, status, errorCode(resp))
	require.NoError(t, json.Unmarshal(resp.Data, &ticket))
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.NotNil(t, ticket.ClosedAt)

	status, resp = srv.do(t, "PATCH", "/api/tickets/"+ticket.ID+"/status", techA, map[string]string{"status": "CLOSED"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(resp))

	status, resp = srv.do(t, "GET", "/api/technicians/tech-a/score", user, nil)
	require.Equal(t, fiber.StatusOK, status)
	var score dto.ScoreResponse
	require.NoError(t, json.Unmarshal(resp.Data, &score))
	assert.EqualValues(t, 10, score.Points)

	assert.Equal(t, []events.Kind{events.KindTicketCreated, events.KindTicketClaimed, events.KindTicketUpdated}, sub.kinds(t))
}

func TestErrorCodesOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	tech := srv.token(t, "tech-a", domain.RoleTechnician)

	status, resp := srv.do(t, "GET", "/api/tickets", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(resp))

	status, resp = srv.do(t, "GET", "/api/tickets", "garbage", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIAL", errorCode(resp))

	status, resp = srv.do(t, "GET", "/api/tickets/does-not-exist", tech, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(resp))

	status, resp = srv.do(t, "POST", "/api/tickets", tech, map[string]any{"priority": "SOON"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(resp))
	assert.Contains(t, resp.Error.Details, "title")

	status, resp = srv.do(t, "PATCH", "/api/tickets/x/status", tech, map[string]string{"status": "DONE"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(resp))

	status, _ = srv.do(t, "GET", "/ws?token="+tech, "", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, status)

	status, resp = srv.do(t, "GET", "/api/nope", tech, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(resp))
}

func TestAuthRoutes(t *testing.T) {
	srv := newTestServer(t)

	status, resp := srv.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": "admin-pass"})
	require.Equal(t, fiber.StatusOK, status, errorCode(resp))
	var login struct {
		User dto.UserResponse `json:"user"`
		Auth dto.AuthResponse `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &login))
	assert.Equal(t, domain.RoleAdmin, login.User.Role)

	newTech := map[string]string{"name": "Tess", "email": "tess@example.com", "password": "password1", "role": "TECHNICIAN"}
	status, resp = srv.do(t, "POST", "/api/auth/register", login.Auth.Token, newTech)
	require.Equal(t, fiber.StatusCreated, status, errorCode(resp))

	status, resp = srv.do(t, "POST", "/api/auth/register", login.Auth.Token, newTech)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(resp))

	tech := srv.token(t, "tech-a", domain.RoleTechnician)
	status, resp = srv.do(t, "POST", "/api/auth/register", tech, newTech)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(resp))

	status, resp = srv.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "tess@example.com", "password": "wrong-pass"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIAL", errorCode(resp))

	// 40 characters but 80 bytes, past bcrypt's input limit.
	wide := map[string]string{"name": "Wide", "email": "wide@example.com", "password": strings.Repeat("é", 40)}
	status, resp = srv.do(t, "POST", "/api/auth/register", login.Auth.Token, wide)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(resp))
}

func TestTechnicianPresenceRoute(t *testing.T) {
	srv := newTestServer(t)
	srv.hub.Register(&collector{id: "conn-1"})
	srv.hub.MarkAvailable("tech-a", "conn-1")

	status, _ := srv.do(t, "GET", "/api/technicians/online", srv.token(t, "u", domain.RoleUser), nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, resp := srv.do(t, "GET", "/api/technicians/online", srv.token(t, "tech-b", domain.RoleTechnician), nil)
	require.Equal(t, fiber.StatusOK, status)
	var online []string
	require.NoError(t, json.Unmarshal(resp.Data, &online))
	assert.Equal(t, []string{"tech-a"}, online)
}

func TestHealthRoutes(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/health/live", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/health/ready", nil)
	resp, err = srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "memory store with no redis is ready")
}

type collector struct {
	id   string
	msgs [][]byte
}

func (c *collector) ID() string { return c.id }
func (c *collector) Send(msg []byte) bool {
	c.msgs = append(c.msgs, msg)
	return true
}
func (c *collector) Close() {}

func (c *collector) kinds(t *testing.T) []events.Kind {
	t.Helper()
	out := make([]events.Kind, 0, len(c.msgs))
	for _, raw := range c.msgs {
		var ev events.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		out = append(out, ev.Kind)
	}
	return out
}
