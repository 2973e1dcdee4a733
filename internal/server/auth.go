package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/generate"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/models"
)

const loginStateLength = 32

// Login starts the ProConnect login flow. The state and nonce are kept in a
// cookie until the callback.
func (a *API) Login(c *gin.Context) {
	req := &api.LoginRequest{}
	if err := bind(c, req); err != nil {
		sendAPIError(c, err)
		return
	}

	state, err := generate.CryptoRandom(loginStateLength, generate.CharsetAlphaNumeric)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	nonce, err := generate.CryptoRandom(loginStateLength, generate.CharsetAlphaNumeric)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	authURL, err := a.server.provider.AuthCodeURL(c.Request.Context(), state, nonce)
	if err != nil {
		sendAPIError(c, fmt.Errorf("%w: identity provider: %s", internal.ErrBadGateway, err))
		return
	}

	setLoginStateCookie(c, loginState{State: state, Nonce: nonce, Next: safeRedirectPath(req.Next)})
	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the login flow: it checks the state, exchanges the code
// for the identity of the user, and starts a session.
func (a *API) Callback(c *gin.Context) {
	req := &api.CallbackRequest{}
	if err := bind(c, req); err != nil {
		sendAPIError(c, err)
		return
	}

	ls, ok := popLoginStateCookie(c)
	if !ok {
		sendAPIError(c, fmt.Errorf("%w: login state not found, the login may have expired", internal.ErrUnauthorized))
		return
	}

	if req.Error != "" {
		sendAPIError(c, fmt.Errorf("%w: identity provider returned %s: %s", internal.ErrUnauthorized, req.Error, req.ErrorDescription))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.State), []byte(ls.State)) != 1 {
		sendAPIError(c, fmt.Errorf("%w: login state does not match", internal.ErrUnauthorized))
		return
	}

	if req.Code == "" {
		sendAPIError(c, fmt.Errorf("%w: code is required", internal.ErrBadRequest))
		return
	}

	identity, err := a.server.provider.Exchange(c.Request.Context(), req.Code, ls.Nonce)
	if err != nil {
		sendAPIError(c, fmt.Errorf("%w: login failed: %s", internal.ErrUnauthorized, err))
		return
	}

	idToken, err := a.server.encryptor.Encrypt(identity.IDToken)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	var (
		user    *models.User
		session *models.Session
		token   string
	)
	err = getDB(c).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = data.UpsertUserFromClaims(tx, data.UserClaims{
			Subject:       identity.Subject,
			Email:         identity.Email,
			GivenName:     identity.GivenName,
			UsualName:     identity.UsualName,
			Siret:         identity.Siret,
			IdPID:         identity.IdPID,
			IsPublicAgent: identity.PublicAgent,
		})
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		session = &models.Session{
			UserID:              user.ID,
			IDTokenEncrypted:    idToken,
			ExpiresAt:           time.Now().UTC().Add(a.server.options.SessionDuration),
			InactivityExtension: a.server.options.SessionInactivityTimeout,
		}
		token, err = data.CreateSession(tx, session)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		sendAPIError(c, err)
		return
	}

	logging.L.Info().
		Str("userID", user.ID.String()).
		Bool("publicAgent", user.IsPublicAgent).
		Msg("user logged in")

	setAuthCookie(c, token, session.ExpiresAt)
	c.Redirect(http.StatusFound, ls.Next)
}

// Logout ends the session. The response includes the URL that ends the
// session at ProConnect as well.
func (a *API) Logout(c *gin.Context, _ *api.EmptyRequest) (*api.LogoutResponse, error) {
	session := getSession(c)
	if err := data.DeleteSession(getDB(c), session.ID); err != nil {
		return nil, err
	}

	deleteAuthCookie(c)

	idToken := ""
	if session.IDTokenEncrypted != "" {
		var err error
		idToken, err = a.server.encryptor.Decrypt(session.IDTokenEncrypted)
		if err != nil {
			logging.L.Debug().Err(err).Msg("id token hint is not available")
		}
	}

	state, err := generate.CryptoRandom(loginStateLength, generate.CharsetAlphaNumeric)
	if err != nil {
		return nil, err
	}

	endSessionURL, err := a.server.provider.EndSessionURL(c.Request.Context(), idToken, state)
	if err != nil {
		// the local session is gone, which is what matters
		logging.L.Warn().Err(err).Msg("could not build the end session url")
		return &api.LogoutResponse{}, nil
	}

	return &api.LogoutResponse{EndSessionURL: endSessionURL}, nil
}
