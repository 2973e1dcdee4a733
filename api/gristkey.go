package api

type GristKeyStatus struct {
	Configured bool   `json:"configured"`
	ServerURL  string `json:"serverURL,omitempty"`
	// Valid is false when the stored key can no longer be decrypted, and
	// must be entered again.
	Valid     bool `json:"valid"`
	UpdatedAt Time `json:"updatedAt"`
}

type SetGristKeyRequest struct {
	APIKey    string `json:"apiKey" validate:"required,min=8,max=256"`
	ServerURL string `json:"serverURL" validate:"required,max=2048"`
}

type VerifyGristKeyRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

type VerifyGristKeyResponse struct {
	Matches bool `json:"matches"`
}
