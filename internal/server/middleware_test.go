package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"

	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/models"
)

func TestTimeoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TimeoutMiddleware(10 * time.Millisecond))

	var ctxErr error
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
		ctxErr = c.Request.Context().Err()
		c.Status(http.StatusGatewayTimeout)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, resp.Code, http.StatusGatewayTimeout)
	assert.Assert(t, errors.Is(ctxErr, context.DeadlineExceeded))
}

func TestDatabaseMiddleware_RollbackOnFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupDB(t)

	router := gin.New()
	router.Use(DatabaseMiddleware(db))
	router.GET("/:status", func(c *gin.Context) {
		_, err := data.UpsertUserFromClaims(getDB(c), data.UserClaims{
			Subject: "sub-" + c.Param("status"),
			Email:   c.Param("status") + "@example.gouv.fr",
		})
		assert.Check(t, err)

		if c.Param("status") == "fail" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/ok", "/fail"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	}

	_, err := data.GetUser(db, data.BySubject("sub-ok"))
	assert.NilError(t, err)

	_, err = data.GetUser(db, data.BySubject("sub-fail"))
	assert.ErrorContains(t, err, "record not found")
}

func TestNoTransactionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupDB(t)

	router := gin.New()
	router.Use(NoTransactionMiddleware(db))
	router.GET("/fail", func(c *gin.Context) {
		_, err := data.UpsertUserFromClaims(getDB(c), data.UserClaims{
			Subject: "sub-fail",
			Email:   "fail@example.gouv.fr",
		})
		assert.Check(t, err)
		c.Status(http.StatusBadGateway)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, resp.Code, http.StatusBadGateway)

	// every statement commits on its own
	_, err := data.GetUser(db, data.BySubject("sub-fail"))
	assert.NilError(t, err)
}

func TestAuthenticatedMiddleware(t *testing.T) {
	s, _ := setupServer(t)
	routes := s.GenerateRoutes()

	user := createUser(t, s.db, "sub-1", true)
	token := createSession(t, s.db, user)

	t.Run("bearer token", func(t *testing.T) {
		resp := request(t, routes, http.MethodGet, "/api/me", token, nil)
		assert.Equal(t, resp.Code, http.StatusOK, resp.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: CookieAuthorizationName, Value: url.QueryEscape(token)})
		resp := httptest.NewRecorder()
		routes.ServeHTTP(resp, req)
		assert.Equal(t, resp.Code, http.StatusOK, resp.Body.String())
	})

	t.Run("invalid secret", func(t *testing.T) {
		keyID := token[:models.SessionKeyIDLength]
		resp := request(t, routes, http.MethodGet, "/api/me", keyID+".not-the-secret-of-session", nil)
		assert.Equal(t, resp.Code, http.StatusUnauthorized)
		assert.Equal(t, decodeError(t, resp).Message, "unauthorized")
	})

	t.Run("malformed token", func(t *testing.T) {
		resp := request(t, routes, http.MethodGet, "/api/me", "no-separator", nil)
		assert.Equal(t, resp.Code, http.StatusUnauthorized)
	})

	t.Run("expired session", func(t *testing.T) {
		expired, err := data.CreateSession(s.db, &models.Session{
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(-time.Minute),
		})
		assert.NilError(t, err)

		resp := request(t, routes, http.MethodGet, "/api/me", expired, nil)
		assert.Equal(t, resp.Code, http.StatusUnauthorized)
		assert.Equal(t, decodeError(t, resp).Message, "unauthorized: session expired")
	})

	t.Run("inactive session", func(t *testing.T) {
		session := &models.Session{
			UserID:              user.ID,
			ExpiresAt:           time.Now().Add(time.Hour),
			InactivityExtension: time.Minute,
		}
		inactive, err := data.CreateSession(s.db, session)
		assert.NilError(t, err)

		session.InactivityTimeout = time.Now().Add(-time.Second).UTC()
		assert.NilError(t, s.db.Save(session).Error)

		resp := request(t, routes, http.MethodGet, "/api/me", inactive, nil)
		assert.Equal(t, resp.Code, http.StatusUnauthorized)
		assert.ErrorContains(t, errors.New(decodeError(t, resp).Message), "session expired")
	})

	t.Run("user deleted", func(t *testing.T) {
		gone := createUser(t, s.db, "sub-gone", false)
		goneToken := createSession(t, s.db, gone)
		assert.NilError(t, s.db.Delete(gone).Error)

		resp := request(t, routes, http.MethodGet, "/api/me", goneToken, nil)
		assert.Equal(t, resp.Code, http.StatusUnauthorized)
	})
}
