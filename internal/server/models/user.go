package models

import (
	"time"

	"github.com/gristips/gristips/api"
)

// User is a person who logged in with ProConnect. The profile fields are
// refreshed from the identity claims on every login.
type User struct {
	Model

	// Subject is the sub claim, the stable identifier of the user at
	// ProConnect.
	Subject       string `gorm:"uniqueIndex:idx_users_subject,where:deleted_at is NULL"`
	Email         string
	GivenName     string
	UsualName     string
	Siret         string
	IdPID         string
	IsPublicAgent bool
	LastLoginAt   time.Time

	GristServerURL string
	// GristAPIKeyEncrypted is the Grist API key sealed with the server
	// master key. GristAPIKeyHash is its SHA-256, used to compare a key
	// without decrypting the stored one.
	GristAPIKeyEncrypted string
	GristAPIKeyHash      string
	GristKeyUpdatedAt    time.Time
}

func (u *User) HasGristKey() bool {
	return u.GristAPIKeyEncrypted != ""
}

func (u *User) ToAPI() *api.User {
	return &api.User{
		ID:            u.ID,
		Email:         u.Email,
		GivenName:     u.GivenName,
		UsualName:     u.UsualName,
		Siret:         u.Siret,
		IsPublicAgent: u.IsPublicAgent,
		HasGristKey:   u.HasGristKey(),
		LastLoginAt:   api.Time(u.LastLoginAt),
		Created:       api.Time(u.CreatedAt),
	}
}
