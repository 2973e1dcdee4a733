package server

import (
	"github.com/gin-gonic/gin"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/models"
)

func (a *API) ListAutomations(c *gin.Context, r *api.ListAutomationsRequest) (*api.ListResponse[api.Automation], error) {
	p := models.RequestToPagination(r.PaginationRequest)
	automations, err := data.ListAutomations(getDB(c), getUser(c).ID, &p)
	if err != nil {
		return nil, err
	}

	result := api.NewListResponse(automations, models.PaginationToResponse(p), func(automation models.Automation) api.Automation {
		return *automation.ToAPI()
	})

	return result, nil
}

func (a *API) GetAutomation(c *gin.Context, r *api.Resource) (*api.Automation, error) {
	automation, err := data.GetAutomation(getDB(c), getUser(c).ID, r.ID)
	if err != nil {
		return nil, err
	}

	return automation.ToAPI(), nil
}

func (a *API) CreateAutomation(c *gin.Context, r *api.CreateAutomationRequest) (*api.Automation, error) {
	automation := &models.Automation{UserID: getUser(c).ID}
	applyAutomationRequest(automation, r)

	if err := data.CreateAutomation(getDB(c), automation); err != nil {
		return nil, err
	}

	return automation.ToAPI(), nil
}

func (a *API) UpdateAutomation(c *gin.Context, r *api.UpdateAutomationRequest) (*api.Automation, error) {
	db := getDB(c)
	automation, err := data.GetAutomation(db, getUser(c).ID, r.ID)
	if err != nil {
		return nil, err
	}

	applyAutomationRequest(automation, &r.CreateAutomationRequest)

	if err := data.UpdateAutomation(db, automation); err != nil {
		return nil, err
	}

	return automation.ToAPI(), nil
}

func (a *API) DeleteAutomation(c *gin.Context, r *api.Resource) error {
	return data.DeleteAutomation(getDB(c), getUser(c).ID, r.ID)
}

func applyAutomationRequest(automation *models.Automation, r *api.CreateAutomationRequest) {
	automation.Name = r.Name
	automation.Description = r.Description
	automation.SourceDocID = r.SourceDocID
	automation.SourceTableID = r.SourceTableID
	automation.TargetDocID = r.TargetDocID
	automation.TargetTableID = r.TargetTableID
	automation.Schedule = models.Schedule(r.Schedule)
	automation.Enabled = r.Enabled
}
