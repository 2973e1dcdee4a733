package api

import "github.com/gristips/gristips/uid"

type User struct {
	ID            uid.ID `json:"id"`
	Email         string `json:"email"`
	GivenName     string `json:"givenName,omitempty"`
	UsualName     string `json:"usualName,omitempty"`
	Siret         string `json:"siret,omitempty"`
	IsPublicAgent bool   `json:"isPublicAgent"`
	HasGristKey   bool   `json:"hasGristKey"`
	LastLoginAt   Time   `json:"lastLoginAt"`
	Created       Time   `json:"created"`
}

type LoginRequest struct {
	// Next is a relative path to redirect to once logged in.
	Next string `form:"next"`
}

type CallbackRequest struct {
	Code             string `form:"code"`
	State            string `form:"state"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

type LogoutResponse struct {
	// EndSessionURL ends the session at the identity provider as well. It
	// is empty when the provider does not support it.
	EndSessionURL string `json:"endSessionURL,omitempty"`
}
