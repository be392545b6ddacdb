package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

const testSecret = "test-secret"

func testUser() *models.User {
	return &models.User{ID: primitive.NewObjectID(), Email: "user@example.com", Name: "User"}
}

// mountAuth mounts the middleware in front of a handler that reports the
// resolved identity.
func mountAuth(handler gin.HandlerFunc) (*gin.Engine, *struct {
	called bool
	userID *primitive.ObjectID
}) {
	gin.SetMode(gin.TestMode)
	state := &struct {
		called bool
		userID *primitive.ObjectID
	}{}
	router := gin.New()
	router.GET("/ping", handler, func(c *gin.Context) {
		state.called = true
		if value, exists := c.Get("userId"); exists {
			id := value.(primitive.ObjectID)
			state.userID = &id
		}
		c.Status(http.StatusOK)
	})
	return router, state
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	user := testUser()
	token, err := utils.GenerateJWTToken(user, testSecret, "drive", time.Hour)
	require.NoError(t, err)

	router, state := mountAuth(AuthMiddleware(testSecret))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, state.called)
	require.NotNil(t, state.userID)
	assert.Equal(t, user.ID, *state.userID)
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	user := testUser()

	wrongSecret, err := utils.GenerateJWTToken(user, "another-secret", "drive", time.Hour)
	require.NoError(t, err)
	expired, err := utils.GenerateJWTToken(user, testSecret, "drive", -time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong secret":   "Bearer " + wrongSecret,
		"expired":        "Bearer " + expired,
		"not a token":    "Bearer garbage",
	}
	for name, header := range cases {
		router, state := mountAuth(AuthMiddleware(testSecret))
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.False(t, state.called, name)
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	// Anonymous callers pass through without an identity.
	router, state := mountAuth(OptionalAuthMiddleware(testSecret))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, state.called)
	assert.Nil(t, state.userID)

	// A valid token still resolves the caller.
	user := testUser()
	token, err := utils.GenerateJWTToken(user, testSecret, "drive", time.Hour)
	require.NoError(t, err)

	router, state = mountAuth(OptionalAuthMiddleware(testSecret))
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	require.True(t, state.called)
	require.NotNil(t, state.userID)
	assert.Equal(t, user.ID, *state.userID)
}
