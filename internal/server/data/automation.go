package data

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/server/models"
	"github.com/gristips/gristips/uid"
)

func validateAutomation(a *models.Automation) error {
	switch {
	case a.UserID == 0:
		return fmt.Errorf("userID is required")
	case a.Name == "":
		return fmt.Errorf("%w: name is required", internal.ErrBadRequest)
	case a.SourceDocID == "" || a.SourceTableID == "":
		return fmt.Errorf("%w: source document and table are required", internal.ErrBadRequest)
	case a.TargetDocID == "" || a.TargetTableID == "":
		return fmt.Errorf("%w: target document and table are required", internal.ErrBadRequest)
	case a.SourceDocID == a.TargetDocID && a.SourceTableID == a.TargetTableID:
		return fmt.Errorf("%w: source and target must be different tables", internal.ErrBadRequest)
	}

	switch a.Schedule {
	case "":
		a.Schedule = models.ScheduleManual
	case models.ScheduleManual, models.ScheduleHourly, models.ScheduleDaily, models.ScheduleWeekly:
	default:
		return fmt.Errorf("%w: unknown schedule %q", internal.ErrBadRequest, a.Schedule)
	}
	return nil
}

func CreateAutomation(db *gorm.DB, a *models.Automation) error {
	if err := validateAutomation(a); err != nil {
		return err
	}
	return add(db, a)
}

// GetAutomation returns the automation id owned by userID.
func GetAutomation(db *gorm.DB, userID, id uid.ID) (*models.Automation, error) {
	return get[models.Automation](db, ByID(id), ByUserID(userID))
}

func ListAutomations(db *gorm.DB, userID uid.ID, p *models.Pagination) ([]models.Automation, error) {
	return list[models.Automation](db, p, ByUserID(userID))
}

func UpdateAutomation(db *gorm.DB, a *models.Automation) error {
	if a.ID == 0 {
		return fmt.Errorf("id is required")
	}
	if err := validateAutomation(a); err != nil {
		return err
	}
	return save(db, a)
}

// DeleteAutomation deletes the automation id owned by userID.
func DeleteAutomation(db *gorm.DB, userID, id uid.ID) error {
	if _, err := GetAutomation(db, userID, id); err != nil {
		return err
	}
	return delete[models.Automation](db, id)
}
