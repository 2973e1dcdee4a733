package data

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gristips/gristips/internal/generate"
	"github.com/gristips/gristips/internal/server/models"
	"github.com/gristips/gristips/uid"
)

const DefaultSessionDuration = 12 * time.Hour

var (
	ErrSessionExpired  = fmt.Errorf("session expired")
	ErrSessionInactive = fmt.Errorf("%w: inactivity timeout exceeded", ErrSessionExpired)
)

func secretChecksum(secret string) []byte {
	chksm := sha256.Sum256([]byte(secret))
	return chksm[:]
}

// CreateSession stores session and returns the token to give to the browser.
func CreateSession(db *gorm.DB, session *models.Session) (string, error) {
	if session.UserID == 0 {
		return "", fmt.Errorf("userID is required")
	}

	if session.KeyID == "" {
		session.KeyID = generate.MathRandom(models.SessionKeyIDLength, generate.CharsetAlphaNumeric)
	}

	if len(session.KeyID) != models.SessionKeyIDLength {
		return "", fmt.Errorf("invalid key length")
	}

	if session.Secret == "" {
		secret, err := generate.CryptoRandom(models.SessionSecretLength, generate.CharsetAlphaNumeric)
		if err != nil {
			return "", err
		}

		session.Secret = secret
	}

	if len(session.Secret) != models.SessionSecretLength {
		return "", fmt.Errorf("invalid secret length")
	}

	session.SecretChecksum = secretChecksum(session.Secret)

	now := time.Now().UTC()
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = now.Add(DefaultSessionDuration)
	}

	if session.InactivityExtension > 0 {
		session.InactivityTimeout = now.Add(session.InactivityExtension)
	}

	if err := add(db, session); err != nil {
		return "", err
	}

	return session.Token(), nil
}

// ValidateSession returns the session for token. A session with an
// inactivity timeout has the timeout extended each time it is validated.
func ValidateSession(db *gorm.DB, token string) (*models.Session, error) {
	keyID, secret, ok := strings.Cut(token, ".")
	if !ok {
		return nil, fmt.Errorf("invalid session token format")
	}

	session, err := get[models.Session](db, ByKeyID(keyID))
	if err != nil {
		return nil, fmt.Errorf("%w: could not get session from database, it may not exist", err)
	}

	if subtle.ConstantTimeCompare(session.SecretChecksum, secretChecksum(secret)) != 1 {
		return nil, fmt.Errorf("session invalid secret")
	}

	now := time.Now().UTC()
	if now.After(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	if session.InactivityExtension > 0 {
		if now.After(session.InactivityTimeout) {
			return nil, ErrSessionInactive
		}

		session.InactivityTimeout = now.Add(session.InactivityExtension)
		if err := save(db, session); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func DeleteSession(db *gorm.DB, id uid.ID) error {
	return delete[models.Session](db, id)
}

// DeleteSessionsForUser ends every session of a user.
func DeleteSessionsForUser(db *gorm.DB, userID uid.ID) error {
	return db.Where("user_id = ?", userID).Delete(&models.Session{}).Error
}

// DeleteExpiredSessions permanently removes sessions that can no longer be
// used, including the ones that were logged out. It returns the number of
// removed sessions.
func DeleteExpiredSessions(db *gorm.DB, now time.Time) (int64, error) {
	now = now.UTC()
	result := db.Unscoped().
		Where("expires_at <= ?", now).
		Or("inactivity_extension > 0 AND inactivity_timeout <= ?", now).
		Or("deleted_at IS NOT NULL").
		Delete(&models.Session{})
	return result.RowsAffected, result.Error
}
