package data

import (
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/server/models"
)

func TestCreateSession(t *testing.T) {
	db := setupDB(t)
	user := createUser(t, db, "sub-1")

	t.Run("defaults", func(t *testing.T) {
		session := &models.Session{UserID: user.ID}
		token, err := CreateSession(db, session)
		assert.NilError(t, err)

		keyID, secret, ok := strings.Cut(token, ".")
		assert.Assert(t, ok)
		assert.Equal(t, len(keyID), models.SessionKeyIDLength)
		assert.Equal(t, len(secret), models.SessionSecretLength)
		assert.Assert(t, !session.ExpiresAt.IsZero())
		assert.Assert(t, session.InactivityTimeout.IsZero())
	})

	t.Run("user is required", func(t *testing.T) {
		_, err := CreateSession(db, &models.Session{})
		assert.ErrorContains(t, err, "userID is required")
	})

	t.Run("invalid key length", func(t *testing.T) {
		_, err := CreateSession(db, &models.Session{UserID: user.ID, KeyID: "short"})
		assert.ErrorContains(t, err, "invalid key length")
	})

	t.Run("secret is not stored", func(t *testing.T) {
		session := &models.Session{UserID: user.ID}
		_, err := CreateSession(db, session)
		assert.NilError(t, err)

		fromDB, err := get[models.Session](db, ByID(session.ID))
		assert.NilError(t, err)
		assert.Equal(t, fromDB.Secret, "")
		assert.DeepEqual(t, fromDB.SecretChecksum, secretChecksum(session.Secret))
	})
}

func TestValidateSession(t *testing.T) {
	db := setupDB(t)
	user := createUser(t, db, "sub-1")

	t.Run("valid", func(t *testing.T) {
		session := &models.Session{UserID: user.ID}
		token, err := CreateSession(db, session)
		assert.NilError(t, err)

		validated, err := ValidateSession(db, token)
		assert.NilError(t, err)
		assert.Equal(t, validated.ID, session.ID)
		assert.Equal(t, validated.UserID, user.ID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		session := &models.Session{UserID: user.ID}
		_, err := CreateSession(db, session)
		assert.NilError(t, err)

		_, err = ValidateSession(db, session.KeyID+"."+strings.Repeat("a", models.SessionSecretLength))
		assert.ErrorContains(t, err, "invalid secret")
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := ValidateSession(db, "aaaaaaaaaa.bbbbbbbbbbbbbbbbbbbbbbbb")
		assert.ErrorIs(t, err, internal.ErrNotFound)
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := ValidateSession(db, "no-separator")
		assert.ErrorContains(t, err, "invalid session token format")
	})

	t.Run("expired", func(t *testing.T) {
		session := &models.Session{UserID: user.ID, ExpiresAt: time.Now().UTC().Add(-time.Minute)}
		token, err := CreateSession(db, session)
		assert.NilError(t, err)

		_, err = ValidateSession(db, token)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("inactivity timeout is extended", func(t *testing.T) {
		session := &models.Session{UserID: user.ID, InactivityExtension: time.Hour}
		token, err := CreateSession(db, session)
		assert.NilError(t, err)

		validated, err := ValidateSession(db, token)
		assert.NilError(t, err)
		assert.Assert(t, !validated.InactivityTimeout.Before(session.InactivityTimeout))
	})

	t.Run("inactive", func(t *testing.T) {
		session := &models.Session{UserID: user.ID, InactivityExtension: time.Hour}
		token, err := CreateSession(db, session)
		assert.NilError(t, err)

		session.InactivityTimeout = time.Now().UTC().Add(-time.Minute)
		assert.NilError(t, save(db, session))

		_, err = ValidateSession(db, token)
		assert.ErrorIs(t, err, ErrSessionInactive)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("deleted", func(t *testing.T) {
		session := &models.Session{UserID: user.ID}
		token, err := CreateSession(db, session)
		assert.NilError(t, err)

		assert.NilError(t, DeleteSession(db, session.ID))

		_, err = ValidateSession(db, token)
		assert.ErrorIs(t, err, internal.ErrNotFound)
	})
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := setupDB(t)
	user := createUser(t, db, "sub-1")
	now := time.Now().UTC()

	active := &models.Session{UserID: user.ID, InactivityExtension: time.Hour}
	_, err := CreateSession(db, active)
	assert.NilError(t, err)

	expired := &models.Session{UserID: user.ID, ExpiresAt: now.Add(-time.Minute)}
	_, err = CreateSession(db, expired)
	assert.NilError(t, err)

	inactive := &models.Session{UserID: user.ID, InactivityExtension: time.Hour}
	_, err = CreateSession(db, inactive)
	assert.NilError(t, err)
	inactive.InactivityTimeout = now.Add(-time.Minute)
	assert.NilError(t, save(db, inactive))

	loggedOut := &models.Session{UserID: user.ID}
	_, err = CreateSession(db, loggedOut)
	assert.NilError(t, err)
	assert.NilError(t, DeleteSession(db, loggedOut.ID))

	count, err := DeleteExpiredSessions(db, now)
	assert.NilError(t, err)
	assert.Equal(t, count, int64(3))

	var remaining []models.Session
	assert.NilError(t, db.Unscoped().Find(&remaining).Error)
	assert.Equal(t, len(remaining), 1)
	assert.Equal(t, remaining[0].ID, active.ID)
}

func TestDeleteSessionsForUser(t *testing.T) {
	db := setupDB(t)
	first := createUser(t, db, "sub-1")
	second := createUser(t, db, "sub-2")

	firstToken, err := CreateSession(db, &models.Session{UserID: first.ID})
	assert.NilError(t, err)
	secondToken, err := CreateSession(db, &models.Session{UserID: second.ID})
	assert.NilError(t, err)

	assert.NilError(t, DeleteSessionsForUser(db, first.ID))

	_, err = ValidateSession(db, firstToken)
	assert.ErrorIs(t, err, internal.ErrNotFound)
	_, err = ValidateSession(db, secondToken)
	assert.NilError(t, err)
}
