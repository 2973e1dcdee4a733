package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	CookieAuthorizationName = "auth"
	CookieLoginName         = "login"
	CookieLoginStateName    = "login_state"
	CookieDomain            = ""
	CookiePath              = "/"
	// while these vars look goofy, they avoid "magic number" arguments to SetCookie
	CookieHTTPOnlyNotJavascriptAccessible = true    // setting HttpOnly to true means JS can't access it.
	CookieSecureHTTPSOnly                 = true    // setting Secure to true means the cookie is only sent over https connections
	CookieMaxAgeDeleteImmediately         = int(-1) // <0: delete immediately
	CookieMaxAgeNoExpiry                  = int(0)  // zero has special meaning of "no expiry"

	// loginStateMaxAge bounds the time a user can spend on the ProConnect
	// login page.
	loginStateMaxAge = 10 * time.Minute
)

func secureCookie(c *gin.Context) bool {
	// if the request came over HTTP, then the cookie will need to be sent unsecured
	return CookieSecureHTTPSOnly && c.Request.TLS != nil
}

// setAuthCookie sets the session cookie. The cookie is lax, because it is
// set at the end of a redirect chain that starts at ProConnect.
func setAuthCookie(c *gin.Context, key string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge == CookieMaxAgeNoExpiry {
		maxAge = CookieMaxAgeDeleteImmediately
	}

	secure := secureCookie(c)
	c.SetSameSite(http.SameSiteLaxMode)

	c.SetCookie(CookieAuthorizationName, key, maxAge, CookiePath, CookieDomain, secure, CookieHTTPOnlyNotJavascriptAccessible)
	c.SetCookie(CookieLoginName, "1", maxAge, CookiePath, CookieDomain, secure, CookieHTTPOnlyNotJavascriptAccessible)
}

func deleteAuthCookie(c *gin.Context) {
	c.SetCookie(CookieAuthorizationName, "", CookieMaxAgeDeleteImmediately, CookiePath, CookieDomain, CookieSecureHTTPSOnly, CookieHTTPOnlyNotJavascriptAccessible)
	c.SetCookie(CookieLoginName, "", CookieMaxAgeDeleteImmediately, CookiePath, CookieDomain, CookieSecureHTTPSOnly, CookieHTTPOnlyNotJavascriptAccessible)
}

// loginState is kept in a cookie between the redirect to ProConnect and the
// callback.
type loginState struct {
	State string
	Nonce string
	// Next is the path to redirect to after the login.
	Next string
}

func setLoginStateCookie(c *gin.Context, ls loginState) {
	value := strings.Join([]string{ls.State, ls.Nonce, ls.Next}, "|")

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieLoginStateName, url.QueryEscape(value), int(loginStateMaxAge.Seconds()), CookiePath, CookieDomain, secureCookie(c), CookieHTTPOnlyNotJavascriptAccessible)
}

// popLoginStateCookie reads the login state and deletes the cookie, so that a
// state is only used once.
func popLoginStateCookie(c *gin.Context) (loginState, bool) {
	value, err := getCookie(c.Request, CookieLoginStateName)
	if err != nil {
		return loginState{}, false
	}

	c.SetCookie(CookieLoginStateName, "", CookieMaxAgeDeleteImmediately, CookiePath, CookieDomain, CookieSecureHTTPSOnly, CookieHTTPOnlyNotJavascriptAccessible)

	parts := strings.SplitN(value, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return loginState{}, false
	}
	return loginState{State: parts[0], Nonce: parts[1], Next: parts[2]}, true
}

// safeRedirectPath returns next when it is a path on this server, and "/"
// otherwise.
func safeRedirectPath(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return "/"
	}

	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}
