package api

type RateLimitStatus struct {
	Name      string `json:"name"`
	Limit     int    `json:"limit"`
	Count     int    `json:"count"`
	Remaining int    `json:"remaining"`
	ResetTime Time   `json:"resetTime"`
}

type RateLimitsResponse struct {
	Items []RateLimitStatus `json:"items"`
}
