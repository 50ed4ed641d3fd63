package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestCreateEmployee(t *testing.T) {
	f := newFixture(t)
	hr := f.user(model.RoleHR, "hr@example.com")

	in := CreateEmployeeInput{
		EmployeeCode: "E-100",
		FirstName:    "Rui",
		LastName:     "Costa",
		Email:        "Rui@Example.com",
		Department:   "Finance",
		Position:     "Analyst",
		HireDate:     time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC),
	}

	e, err := f.employees.Create(context.Background(), hr, in)
	require.NoError(t, err)
	assert.Equal(t, model.EmployeeActive, e.Status)
	assert.Nil(t, e.TerminationDate)
	assert.Equal(t, []string{"employee.created"}, f.recorder.actions())

	t.Run("termination date needs terminated status", func(t *testing.T) {
		bad := in
		bad.TerminationDate = ptr(testNow)
		_, err := f.employees.Create(context.Background(), hr, bad)
		requireHTTPError(t, err, http.StatusBadRequest, "")
	})

	t.Run("terminated defaults to today", func(t *testing.T) {
		gone := in
		gone.Status = model.EmployeeTerminated
		e, err := f.employees.Create(context.Background(), hr, gone)
		require.NoError(t, err)
		require.NotNil(t, e.TerminationDate)
		assert.Equal(t, model.Date(testNow), *e.TerminationDate)
	})

	t.Run("termination before hire", func(t *testing.T) {
		bad := in
		bad.Status = model.EmployeeTerminated
		bad.TerminationDate = ptr(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
		_, err := f.employees.Create(context.Background(), hr, bad)
		requireHTTPError(t, err, http.StatusBadRequest, "")
	})
}

func TestUpdateEmployeeManager(t *testing.T) {
	f := newFixture(t)
	hr := f.user(model.RoleHR, "hr@example.com")

	boss := f.employee("Boss", model.EmployeeActive)
	lead := f.employee("Lead", model.EmployeeActive)
	dev := f.employee("Dev", model.EmployeeActive)
	f.store.employees[lead.ID].ManagerID = &boss.ID
	f.store.employees[dev.ID].ManagerID = &lead.ID

	_, err := f.employees.Update(context.Background(), hr, boss.ID, UpdateEmployeeInput{ManagerID: &dev.ID})
	requireHTTPError(t, err, http.StatusBadRequest, "")

	_, err = f.employees.Update(context.Background(), hr, boss.ID, UpdateEmployeeInput{ManagerID: &boss.ID})
	requireHTTPError(t, err, http.StatusBadRequest, "")

	updated, err := f.employees.Update(context.Background(), hr, dev.ID, UpdateEmployeeInput{ManagerID: &boss.ID})
	require.NoError(t, err)
	assert.Equal(t, boss.ID, *updated.ManagerID)

	updated, err = f.employees.Update(context.Background(), hr, dev.ID, UpdateEmployeeInput{ClearManager: true, Phone: ptr("  ")})
	require.NoError(t, err)
	assert.Nil(t, updated.ManagerID)
	assert.Nil(t, updated.Phone)
}

func TestTerminateEmployeeReleasesItems(t *testing.T) {
	f := newFixture(t)
	hr := f.user(model.RoleHR, "hr@example.com")
	emp := f.employee("Ana", model.EmployeeActive)

	rt := f.laptopType(t)
	item := f.item(t, rt, "MacBook 14")
	item.Status = model.ItemAssigned
	item.AssignedTo = &emp.ID

	updated, err := f.employees.Update(context.Background(), hr, emp.ID, UpdateEmployeeInput{Status: ptr(model.EmployeeTerminated)})
	require.NoError(t, err)

	assert.Equal(t, model.EmployeeTerminated, updated.Status)
	assert.Equal(t, model.Date(testNow), *updated.TerminationDate)

	released := f.store.items[item.ID]
	assert.Equal(t, model.ItemAvailable, released.Status)
	assert.Nil(t, released.AssignedTo)

	assert.Equal(t, []string{"employee.terminated", "resource_item.released"}, f.recorder.actions())
	assert.Equal(t, 1, f.recorder.entries[0].Metadata["releasedItems"])
}

func TestReactivateEmployeeClearsTermination(t *testing.T) {
	f := newFixture(t)
	hr := f.user(model.RoleHR, "hr@example.com")
	emp := f.employee("Ana", model.EmployeeTerminated)
	f.store.employees[emp.ID].TerminationDate = ptr(model.Date(testNow))

	updated, err := f.employees.Update(context.Background(), hr, emp.ID, UpdateEmployeeInput{Status: ptr(model.EmployeeActive)})
	require.NoError(t, err)
	assert.Nil(t, updated.TerminationDate)
	assert.Equal(t, []string{"employee.updated"}, f.recorder.actions())
}

func TestDeleteEmployee(t *testing.T) {
	f := newFixture(t)
	hr := f.user(model.RoleHR, "hr@example.com")
	emp := f.employee("Ana", model.EmployeeActive)

	rt := f.laptopType(t)
	item := f.item(t, rt, "ThinkPad")
	item.Status = model.ItemAssigned
	item.AssignedTo = &emp.ID

	require.NoError(t, f.employees.Delete(context.Background(), hr, emp.ID))

	assert.NotContains(t, f.store.employees, emp.ID)
	assert.Nil(t, f.store.items[item.ID].AssignedTo)
	assert.Equal(t, []string{"employee.deleted", "resource_item.released"}, f.recorder.actions())

	err := f.employees.Delete(context.Background(), hr, emp.ID)
	assert.True(t, isNotFound(err))
}
