package api

type GristOrg struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

type GristDoc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GristWorkspace struct {
	ID   int        `json:"id"`
	Name string     `json:"name"`
	Docs []GristDoc `json:"docs"`
}

type GristTable struct {
	ID string `json:"id"`
}

type GristColumn struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type,omitempty"`
}

type ListGristWorkspacesRequest struct {
	Org string `uri:"org" validate:"required"`
}

type ListGristTablesRequest struct {
	Doc string `uri:"doc" validate:"required"`
}

type ListGristColumnsRequest struct {
	Doc   string `uri:"doc" validate:"required"`
	Table string `uri:"table" validate:"required"`
}
