package models

import (
	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/uid"
)

type Schedule string

const (
	ScheduleManual Schedule = api.ScheduleManual
	ScheduleHourly Schedule = api.ScheduleHourly
	ScheduleDaily  Schedule = api.ScheduleDaily
	ScheduleWeekly Schedule = api.ScheduleWeekly
)

// Automation copies the rows of a source Grist table into a target table.
// Only the configuration is stored; running it is not part of Gristips.
type Automation struct {
	Model
	UserID uid.ID `gorm:"uniqueIndex:idx_automations_user_id_name,where:deleted_at is NULL"`
	Name   string `gorm:"uniqueIndex:idx_automations_user_id_name,where:deleted_at is NULL"`

	Description   string
	SourceDocID   string
	SourceTableID string
	TargetDocID   string
	TargetTableID string
	Schedule      Schedule
	Enabled       bool
}

func (a *Automation) ToAPI() *api.Automation {
	return &api.Automation{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		SourceDocID:   a.SourceDocID,
		SourceTableID: a.SourceTableID,
		TargetDocID:   a.TargetDocID,
		TargetTableID: a.TargetTableID,
		Schedule:      string(a.Schedule),
		Enabled:       a.Enabled,
		Created:       api.Time(a.CreatedAt),
		Updated:       api.Time(a.UpdatedAt),
	}
}
