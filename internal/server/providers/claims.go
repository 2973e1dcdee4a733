package providers

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// BelongingPopulationAgent is the belonging_population of public agents.
const BelongingPopulationAgent = "agent"

var validate = validator.New()

// Claims are the ProConnect userinfo claims that Gristips uses.
type Claims struct {
	Subject             string `json:"sub" validate:"required"`
	Email               string `json:"email" validate:"required,email"`
	GivenName           string `json:"given_name" validate:"max=256"`
	UsualName           string `json:"usual_name" validate:"max=256"`
	Siret               string `json:"siret" validate:"omitempty,numeric,len=14"`
	IdPID               string `json:"idp_id" validate:"max=256"`
	UID                 string `json:"uid"`
	BelongingPopulation string `json:"belonging_population"`
}

// ParseClaims decodes and validates userinfo claims. Claims that fail
// validation are rejected as a whole.
func ParseClaims(raw []byte) (*Claims, error) {
	claims := &Claims{}
	if err := json.Unmarshal(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaims, err)
	}

	if err := validate.Struct(claims); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaims, err)
	}

	return claims, nil
}

// IsPublicAgent reports whether the user belongs to the public sector, either
// declared by the identity provider or implied by an identity provider that
// only serves public agents.
func (c *Claims) IsPublicAgent(publicIdentityProviders []string) bool {
	if c.BelongingPopulation == BelongingPopulationAgent {
		return true
	}

	if c.IdPID == "" {
		return false
	}

	for _, idp := range publicIdentityProviders {
		if idp == c.IdPID {
			return true
		}
	}
	return false
}
