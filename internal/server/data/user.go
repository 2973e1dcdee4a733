package data

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/server/models"
)

// UserClaims is the profile of a user, as asserted by the identity provider.
type UserClaims struct {
	Subject       string
	Email         string
	GivenName     string
	UsualName     string
	Siret         string
	IdPID         string
	IsPublicAgent bool
}

// UpsertUserFromClaims creates the user identified by claims.Subject, or
// refreshes its profile, and records the login.
func UpsertUserFromClaims(db *gorm.DB, claims UserClaims) (*models.User, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}

	user, err := GetUser(db, BySubject(claims.Subject))
	switch {
	case errors.Is(err, internal.ErrNotFound):
		user = &models.User{Subject: claims.Subject}
	case err != nil:
		return nil, err
	}

	user.Email = claims.Email
	user.GivenName = claims.GivenName
	user.UsualName = claims.UsualName
	user.Siret = claims.Siret
	user.IdPID = claims.IdPID
	user.IsPublicAgent = claims.IsPublicAgent
	user.LastLoginAt = time.Now().UTC()

	if user.ID == 0 {
		if err := add(db, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	if err := save(db, user); err != nil {
		return nil, err
	}
	return user, nil
}

func GetUser(db *gorm.DB, selectors ...SelectorFunc) (*models.User, error) {
	return get[models.User](db, selectors...)
}

// SetUserGristKey stores an encrypted Grist API key, and its hash, for user.
func SetUserGristKey(db *gorm.DB, user *models.User, serverURL, encrypted, hash string) error {
	switch {
	case serverURL == "":
		return fmt.Errorf("%w: server url is required", internal.ErrBadRequest)
	case encrypted == "" || hash == "":
		return fmt.Errorf("%w: encrypted key and hash are required", internal.ErrBadRequest)
	}

	user.GristServerURL = serverURL
	user.GristAPIKeyEncrypted = encrypted
	user.GristAPIKeyHash = hash
	user.GristKeyUpdatedAt = time.Now().UTC()
	return save(db, user)
}

func ClearUserGristKey(db *gorm.DB, user *models.User) error {
	user.GristServerURL = ""
	user.GristAPIKeyEncrypted = ""
	user.GristAPIKeyHash = ""
	user.GristKeyUpdatedAt = time.Time{}
	return save(db, user)
}
