package api

type Version struct {
	Version string `json:"version"`
}
