package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

type mapFinder map[string]*models.User

func (m mapFinder) FindByAPIKeyHash(_ context.Context, hash string) (*models.User, error) {
	if u, ok := m[hash]; ok {
		return u, nil
	}
	return nil, ErrUnknownKey
}

func newAuthApp(users UserFinder, guards ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers := append([]fiber.Handler{APIKeyAuthMiddleware(users)}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/", handlers...)
	return app
}

func request(t *testing.T, app *fiber.App, header, value string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	creator := &models.User{ID: 1, Name: "creator", Role: models.ROLE_CREATOR, Status: models.STATUS_ACTIVE}
	key, err := creator.IssueAPIKey()
	require.NoError(t, err)
	disabled := &models.User{ID: 2, Name: "gone", Role: models.ROLE_USER, Status: models.STATUS_DISABLED}
	disabledKey, err := disabled.IssueAPIKey()
	require.NoError(t, err)

	users := mapFinder{creator.APIKeyHash: creator, disabled.APIKeyHash: disabled}
	app := newAuthApp(users)

	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "", ""))
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "X-API-Key", "cvk_wrong"))
	assert.Equal(t, fiber.StatusOK, request(t, app, "X-API-Key", key))
	assert.Equal(t, fiber.StatusOK, request(t, app, "Authorization", "Bearer "+key))
	assert.Equal(t, fiber.StatusForbidden, request(t, app, "X-API-Key", disabledKey))
}

func TestRoleGuards(t *testing.T) {
	fan := &models.User{ID: 1, Name: "fan", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	fanKey, _ := fan.IssueAPIKey()
	creator := &models.User{ID: 2, Name: "creator", Role: models.ROLE_CREATOR, Status: models.STATUS_ACTIVE}
	creatorKey, _ := creator.IssueAPIKey()
	admin := &models.User{ID: 3, Name: "admin", Role: models.ROLE_ADMIN, Status: models.STATUS_ACTIVE}
	adminKey, _ := admin.IssueAPIKey()
	users := mapFinder{fan.APIKeyHash: fan, creator.APIKeyHash: creator, admin.APIKeyHash: admin}

	creatorOnly := newAuthApp(users, RequireCreator)
	assert.Equal(t, fiber.StatusForbidden, request(t, creatorOnly, "X-API-Key", fanKey))
	assert.Equal(t, fiber.StatusOK, request(t, creatorOnly, "X-API-Key", creatorKey))

	adminOnly := newAuthApp(users, RequireAdmin)
	assert.Equal(t, fiber.StatusForbidden, request(t, adminOnly, "X-API-Key", creatorKey))
	assert.Equal(t, fiber.StatusOK, request(t, adminOnly, "X-API-Key", adminKey))
}

func TestRequireAuth_Anonymous(t *testing.T) {
	app := fiber.New()
	app.Get("/", RequireAuth, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "", ""))
}

func TestUserFinder_DB(t *testing.T) {
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)

	u := &models.User{Name: "keyholder", Email: "keyholder@example.test", Role: models.ROLE_CREATOR, Status: models.STATUS_ACTIVE}
	key, err := u.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, db.Create(u).Error)
	require.NoError(t, db.Create(&models.User{Name: "nokey", Email: "nokey@example.test", Status: models.STATUS_ACTIVE}).Error)

	finder := NewUserFinder(db)
	found, err := finder.FindByAPIKeyHash(context.Background(), models.HashAPIKey(key))
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = finder.FindByAPIKeyHash(context.Background(), models.HashAPIKey("cvk_other"))
	assert.ErrorIs(t, err, ErrUnknownKey)
	_, err = finder.FindByAPIKeyHash(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownKey)
}
