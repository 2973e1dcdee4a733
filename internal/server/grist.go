package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/grist"
)

func (s *Server) gristClient(serverURL, apiKey string) *grist.Client {
	return grist.NewClient(grist.ClientOptions{
		ServerURL:  serverURL,
		APIKey:     apiKey,
		HTTPClient: s.grist.httpClient,
		Retrier:    s.grist.retrier,
		Limiter:    s.grist.limiter,
	})
}

// userGristClient returns a client that uses the stored key of the caller.
func (a *API) userGristClient(c *gin.Context) (*grist.Client, error) {
	user := getUser(c)
	if !user.HasGristKey() {
		return nil, internal.ErrGristKeyMissing
	}

	apiKey, err := a.server.encryptor.Decrypt(user.GristAPIKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", internal.ErrGristKeyReenter, err)
	}

	return a.server.gristClient(user.GristServerURL, apiKey), nil
}

// gristError keeps the errors returned by the Grist server, and reports the
// others as a bad gateway.
func gristError(err error) error {
	var apiError *grist.APIError
	switch {
	case errors.As(err, &apiError):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: grist: %s", internal.ErrBadGateway, err)
	}
}

func (a *API) ListGristOrgs(c *gin.Context, _ *api.EmptyRequest) (*api.ListResponse[api.GristOrg], error) {
	client, err := a.userGristClient(c)
	if err != nil {
		return nil, err
	}

	orgs, err := client.ListOrgs(c.Request.Context())
	if err != nil {
		return nil, gristError(err)
	}

	return api.NewListResponse(orgs, api.PaginationResponse{}, func(org grist.Org) api.GristOrg {
		return api.GristOrg{ID: org.ID, Name: org.Name, Domain: org.Domain}
	}), nil
}

func (a *API) ListGristWorkspaces(c *gin.Context, r *api.ListGristWorkspacesRequest) (*api.ListResponse[api.GristWorkspace], error) {
	client, err := a.userGristClient(c)
	if err != nil {
		return nil, err
	}

	workspaces, err := client.ListWorkspaces(c.Request.Context(), r.Org)
	if err != nil {
		return nil, gristError(err)
	}

	return api.NewListResponse(workspaces, api.PaginationResponse{}, func(ws grist.Workspace) api.GristWorkspace {
		docs := make([]api.GristDoc, 0, len(ws.Docs))
		for _, doc := range ws.Docs {
			docs = append(docs, api.GristDoc{ID: doc.ID, Name: doc.Name})
		}
		return api.GristWorkspace{ID: ws.ID, Name: ws.Name, Docs: docs}
	}), nil
}

func (a *API) ListGristTables(c *gin.Context, r *api.ListGristTablesRequest) (*api.ListResponse[api.GristTable], error) {
	client, err := a.userGristClient(c)
	if err != nil {
		return nil, err
	}

	tables, err := client.ListTables(c.Request.Context(), r.Doc)
	if err != nil {
		return nil, gristError(err)
	}

	return api.NewListResponse(tables, api.PaginationResponse{}, func(table grist.Table) api.GristTable {
		return api.GristTable{ID: table.ID}
	}), nil
}

func (a *API) ListGristColumns(c *gin.Context, r *api.ListGristColumnsRequest) (*api.ListResponse[api.GristColumn], error) {
	client, err := a.userGristClient(c)
	if err != nil {
		return nil, err
	}

	columns, err := client.ListColumns(c.Request.Context(), r.Doc, r.Table)
	if err != nil {
		return nil, gristError(err)
	}

	return api.NewListResponse(columns, api.PaginationResponse{}, func(column grist.Column) api.GristColumn {
		return api.GristColumn{ID: column.ID, Label: column.Fields.Label, Type: column.Fields.Type}
	}), nil
}
