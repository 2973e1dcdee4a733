package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/models"
)

const (
	sessionContextKey = "session"
	userContextKey    = "user"
)

// TimeoutMiddleware adds a timeout to the request context within the Gin context.
// To correctly abort long-running requests, this depends on the users of the context to
// stop working when the context cancels.
// Note: The goroutine for the request is never halted; if the context is not
// passed down to lower packages and long-running tasks, then the app will not
// magically stop working on the request. No effort should be made to write
// an early http response here; it's up to the users of the context to watch for
// c.Request.Context().Err() or <-c.Request.Context().Done()
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// DatabaseMiddleware injects a `db` object into the Gin context. The
// transaction is rolled back when the request fails.
func DatabaseMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			c.Set("db", tx)
			c.Next()
			if c.Writer.Status() >= http.StatusInternalServerError {
				return fmt.Errorf("request failed with status %d", c.Writer.Status())
			}
			return nil
		})
		if err != nil {
			logging.Debugf(err.Error())
		}
	}
}

// NoTransactionMiddleware injects a `db` object that is not in a
// transaction, so every statement commits on its own. It is used by the
// routes that call Grist or ProConnect, so that no lock is held while they
// wait for the remote server.
func NoTransactionMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("db", db.WithContext(c.Request.Context()))
		c.Next()
	}
}

func getDB(c *gin.Context) *gorm.DB {
	db, ok := c.MustGet("db").(*gorm.DB)
	if !ok {
		return nil
	}
	return db
}

// authenticatedMiddleware is applied to all routes that require authentication.
// It validates the session, which also extends its inactivity timeout, and
// loads the user of the session.
func authenticatedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := getDB(c)
		session, err := requireSession(db, c.Request)
		if err != nil {
			sendAPIError(c, err)
			return
		}

		user, err := data.GetUser(db, data.ByID(session.UserID))
		if err != nil {
			if errors.Is(err, internal.ErrNotFound) {
				sendAPIError(c, fmt.Errorf("%w: user of the session no longer exists", internal.ErrUnauthorized))
				return
			}
			sendAPIError(c, fmt.Errorf("user for session: %w", err))
			return
		}

		c.Set(sessionContextKey, session)
		c.Set(userContextKey, user)
		c.Next()
	}
}

// requireSession checks that the bearer token, or the session cookie, is a
// valid session.
func requireSession(db *gorm.DB, req *http.Request) (*models.Session, error) {
	header := req.Header.Get("Authorization")

	bearer := ""

	parts := strings.Split(header, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		bearer = parts[1]
	} else {
		// Fall back to checking cookies
		cookie, err := getCookie(req, CookieAuthorizationName)
		if err != nil {
			return nil, fmt.Errorf("%w: valid token not found in request", internal.ErrUnauthorized)
		}

		bearer = cookie
	}

	// this will get caught by session validation, but check to be safe
	if strings.TrimSpace(bearer) == "" {
		return nil, fmt.Errorf("%w: skipped validating empty token", internal.ErrUnauthorized)
	}

	session, err := data.ValidateSession(db, bearer)
	if err != nil {
		if errors.Is(err, data.ErrSessionExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invalid token: %s", internal.ErrUnauthorized, err)
	}

	return session, nil
}

func getCookie(req *http.Request, name string) (string, error) {
	cookie, err := req.Cookie(name)
	if err != nil {
		return "", err
	}
	return url.QueryUnescape(cookie.Value)
}

// requirePublicAgent is applied to the routes reserved to public agents. It
// must follow authenticatedMiddleware.
func requirePublicAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !getUser(c).IsPublicAgent {
			sendAPIError(c, internal.ErrNotAPublicAgent)
			return
		}
		c.Next()
	}
}

func getUser(c *gin.Context) *models.User {
	user, ok := c.MustGet(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func getSession(c *gin.Context) *models.Session {
	session, ok := c.MustGet(sessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}
