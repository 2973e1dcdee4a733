package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                           "/",
		"/":                          "/",
		"/automations":               "/automations",
		"/automations?page=2#top":    "/automations?page=2#top",
		"automations":                "/",
		"//evil.example.com":         "/",
		"/\\evil.example.com":        "/",
		"https://evil.example.com/":  "/",
		"javascript:alert(1)":        "/",
		"/path\r\nSet-Cookie: a=b":   "/",
		"/%2F%2Fevil.example.com":    "/%2F%2Fevil.example.com",
		" /automations":              "/",
		"/grist?next=https://x.test": "/grist?next=https://x.test",
	}

	for next, expected := range tests {
		t.Run(next, func(t *testing.T) {
			assert.Equal(t, safeRedirectPath(next), expected)
		})
	}
}

func TestLoginStateCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)

	resp := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(resp)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)

	setLoginStateCookie(c, loginState{State: "the-state", Nonce: "the-nonce", Next: "/a|b"})

	cookies := resp.Result().Cookies()
	assert.Equal(t, len(cookies), 1)
	assert.Equal(t, cookies[0].MaxAge, int(loginStateMaxAge.Seconds()))

	t.Run("read once", func(t *testing.T) {
		resp := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(resp)
		c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil)
		c.Request.AddCookie(cookies[0])

		ls, ok := popLoginStateCookie(c)
		assert.Assert(t, ok)
		assert.Equal(t, ls, loginState{State: "the-state", Nonce: "the-nonce", Next: "/a|b"})

		deleted := findCookie(resp, CookieLoginStateName)
		assert.Assert(t, deleted != nil)
		assert.Assert(t, deleted.MaxAge < 0)
	})

	t.Run("missing", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil)

		_, ok := popLoginStateCookie(c)
		assert.Assert(t, !ok)
	})

	t.Run("malformed", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil)
		c.Request.AddCookie(&http.Cookie{Name: CookieLoginStateName, Value: "only-a-state"})

		_, ok := popLoginStateCookie(c)
		assert.Assert(t, !ok)
	})
}
