package api

import "github.com/gristips/gristips/uid"

const (
	ScheduleManual = "manual"
	ScheduleHourly = "hourly"
	ScheduleDaily  = "daily"
	ScheduleWeekly = "weekly"
)

type Automation struct {
	ID            uid.ID `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	SourceDocID   string `json:"sourceDocID"`
	SourceTableID string `json:"sourceTableID"`
	TargetDocID   string `json:"targetDocID"`
	TargetTableID string `json:"targetTableID"`
	Schedule      string `json:"schedule"`
	Enabled       bool   `json:"enabled"`
	Created       Time   `json:"created"`
	Updated       Time   `json:"updated"`
}

type ListAutomationsRequest struct {
	PaginationRequest
}

type CreateAutomationRequest struct {
	Name          string `json:"name" validate:"required,max=256"`
	Description   string `json:"description" validate:"max=1024"`
	SourceDocID   string `json:"sourceDocID" validate:"required"`
	SourceTableID string `json:"sourceTableID" validate:"required"`
	TargetDocID   string `json:"targetDocID" validate:"required"`
	TargetTableID string `json:"targetTableID" validate:"required"`
	Schedule      string `json:"schedule" validate:"omitempty,oneof=manual hourly daily weekly"`
	Enabled       bool   `json:"enabled"`
}

type UpdateAutomationRequest struct {
	ID uid.ID `uri:"id" json:"-" validate:"required"`
	CreateAutomationRequest
}
