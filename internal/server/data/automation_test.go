package data

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/server/models"
)

func newAutomation(user *models.User, name string) *models.Automation {
	return &models.Automation{
		UserID:        user.ID,
		Name:          name,
		SourceDocID:   "doc-a",
		SourceTableID: "Agents",
		TargetDocID:   "doc-b",
		TargetTableID: "Agents",
	}
}

func TestCreateAutomation(t *testing.T) {
	db := setupDB(t)
	user := createUser(t, db, "sub-1")
	other := createUser(t, db, "sub-2")

	t.Run("default schedule", func(t *testing.T) {
		a := newAutomation(user, "copy agents")
		assert.NilError(t, CreateAutomation(db, a))
		assert.Assert(t, a.ID != 0)
		assert.Equal(t, a.Schedule, models.ScheduleManual)
	})

	t.Run("duplicate name", func(t *testing.T) {
		err := CreateAutomation(db, newAutomation(user, "copy agents"))
		var ucErr UniqueConstraintError
		assert.Assert(t, errors.As(err, &ucErr), "got %v", err)
		assert.Equal(t, ucErr.Error(), "an automation with that name already exists")
	})

	t.Run("same name for another user", func(t *testing.T) {
		assert.NilError(t, CreateAutomation(db, newAutomation(other, "copy agents")))
	})

	t.Run("invalid", func(t *testing.T) {
		a := newAutomation(user, "")
		assert.ErrorIs(t, CreateAutomation(db, a), internal.ErrBadRequest)

		a = newAutomation(user, "same table")
		a.TargetDocID = a.SourceDocID
		assert.ErrorContains(t, CreateAutomation(db, a), "must be different tables")

		a = newAutomation(user, "bad schedule")
		a.Schedule = "yearly"
		assert.ErrorContains(t, CreateAutomation(db, a), `unknown schedule "yearly"`)
	})
}

func TestGetAutomation_ScopedToOwner(t *testing.T) {
	db := setupDB(t)
	owner := createUser(t, db, "sub-1")
	other := createUser(t, db, "sub-2")

	a := newAutomation(owner, "copy agents")
	assert.NilError(t, CreateAutomation(db, a))

	fromDB, err := GetAutomation(db, owner.ID, a.ID)
	assert.NilError(t, err)
	assert.Equal(t, fromDB.Name, "copy agents")

	_, err = GetAutomation(db, other.ID, a.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)

	err = DeleteAutomation(db, other.ID, a.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)
}

func TestListAutomations(t *testing.T) {
	db := setupDB(t)
	owner := createUser(t, db, "sub-1")
	other := createUser(t, db, "sub-2")

	for _, name := range []string{"one", "two", "three"} {
		assert.NilError(t, CreateAutomation(db, newAutomation(owner, name)))
	}
	assert.NilError(t, CreateAutomation(db, newAutomation(other, "four")))

	all, err := ListAutomations(db, owner.ID, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(all), 3)

	p := &models.Pagination{Page: 2, Limit: 2}
	page, err := ListAutomations(db, owner.ID, p)
	assert.NilError(t, err)
	assert.Equal(t, len(page), 1)
	assert.Equal(t, page[0].Name, "three")
	assert.Equal(t, p.TotalCount, 3)
	assert.Equal(t, p.PageCount, 2)
}

func TestUpdateAndDeleteAutomation(t *testing.T) {
	db := setupDB(t)
	owner := createUser(t, db, "sub-1")

	a := newAutomation(owner, "copy agents")
	assert.NilError(t, CreateAutomation(db, a))

	a.Schedule = models.ScheduleDaily
	a.Enabled = true
	assert.NilError(t, UpdateAutomation(db, a))

	fromDB, err := GetAutomation(db, owner.ID, a.ID)
	assert.NilError(t, err)
	assert.Equal(t, fromDB.Schedule, models.ScheduleDaily)
	assert.Assert(t, fromDB.Enabled)

	assert.NilError(t, DeleteAutomation(db, owner.ID, a.ID))
	_, err = GetAutomation(db, owner.ID, a.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)

	// the name can be used again once deleted
	assert.NilError(t, CreateAutomation(db, newAutomation(owner, "copy agents")))
}
