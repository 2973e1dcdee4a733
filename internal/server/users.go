package server

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/encrypt"
	"github.com/gristips/gristips/internal/grist"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/models"
)

func (a *API) GetMe(c *gin.Context, _ *api.EmptyRequest) (*api.User, error) {
	return getUser(c).ToAPI(), nil
}

func (a *API) GetGristKey(c *gin.Context, _ *api.EmptyRequest) (*api.GristKeyStatus, error) {
	return a.gristKeyStatus(getUser(c)), nil
}

func (a *API) gristKeyStatus(user *models.User) *api.GristKeyStatus {
	status := &api.GristKeyStatus{
		Configured: user.HasGristKey(),
		ServerURL:  user.GristServerURL,
		UpdatedAt:  api.Time(user.GristKeyUpdatedAt),
	}

	if status.Configured {
		_, err := a.server.encryptor.Decrypt(user.GristAPIKeyEncrypted)
		if err != nil {
			logging.L.Warn().Err(err).Str("userID", user.ID.String()).Msg("stored grist key can not be decrypted")
		}
		status.Valid = err == nil
	}
	return status
}

// SetGristKey checks the key with the Grist server, then stores it
// encrypted.
func (a *API) SetGristKey(c *gin.Context, r *api.SetGristKeyRequest) (*api.GristKeyStatus, error) {
	user := getUser(c)
	if err := a.server.limits.gristKey.check(c, userKey(c)); err != nil {
		return nil, err
	}

	serverURL, err := grist.NormalizeServerURL(r.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", internal.ErrBadRequest, err)
	}

	client := a.server.gristClient(serverURL, r.APIKey)
	if _, err := client.CurrentUser(c.Request.Context()); err != nil {
		return nil, gristError(err)
	}

	encrypted, err := a.server.encryptor.Encrypt(r.APIKey)
	if err != nil {
		return nil, err
	}

	if err := data.SetUserGristKey(getDB(c), user, serverURL, encrypted, encrypt.HashSecret(r.APIKey)); err != nil {
		return nil, err
	}

	logging.L.Info().Str("userID", user.ID.String()).Str("serverURL", serverURL).Msg("grist key saved")
	return a.gristKeyStatus(user), nil
}

// VerifyGristKey compares a key with the stored one, without decrypting the
// stored key.
func (a *API) VerifyGristKey(c *gin.Context, r *api.VerifyGristKeyRequest) (*api.VerifyGristKeyResponse, error) {
	user := getUser(c)
	if !user.HasGristKey() {
		return nil, internal.ErrGristKeyMissing
	}

	return &api.VerifyGristKeyResponse{
		Matches: encrypt.VerifySecretHash(r.APIKey, user.GristAPIKeyHash),
	}, nil
}

func (a *API) DeleteGristKey(c *gin.Context, _ *api.EmptyRequest) error {
	return data.ClearUserGristKey(getDB(c), getUser(c))
}

// DeleteSessions ends every session of the caller, including the one used by
// this request.
func (a *API) DeleteSessions(c *gin.Context, _ *api.EmptyRequest) error {
	user := getUser(c)
	if err := data.DeleteSessionsForUser(getDB(c), user.ID); err != nil {
		return err
	}

	deleteAuthCookie(c)
	logging.L.Info().Str("userID", user.ID.String()).Msg("all sessions ended")
	return nil
}
