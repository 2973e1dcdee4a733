package models

import (
	"time"

	"github.com/gristips/gristips/uid"
)

var (
	SessionKeyIDLength  = 10 // the length of the ID used to look-up the session
	SessionSecretLength = 24 // the length of the secret used to validate a session
)

// Session is created when a user logs in. The token given to the browser is
// KeyID.Secret; only a checksum of the secret is stored.
type Session struct {
	Model
	UserID uid.ID `gorm:"index"`

	KeyID          string `gorm:"uniqueIndex:idx_sessions_key_id,where:deleted_at is NULL"`
	Secret         string `gorm:"-"`
	SecretChecksum []byte

	// IDTokenEncrypted is the ProConnect ID token, sealed with the master
	// key, used as a hint to end the session at ProConnect on logout.
	IDTokenEncrypted string

	ExpiresAt           time.Time     // time at which the session must expire. Extensions to the inactivity timeout do not extend this value.
	InactivityExtension time.Duration // how long to increase the inactivity timeout by
	InactivityTimeout   time.Time     // time by which the session must be used or it expires early. using the session sets this to now() + inactivity extension
}

// Token is only set when creating a session.
func (s *Session) Token() string {
	if len(s.Secret) == 0 {
		return ""
	}
	return s.KeyID + "." + s.Secret
}
