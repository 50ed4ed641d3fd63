package service

import (
	"context"
	"strings"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type EmployeeStore interface {
	CreateEmployee(ctx context.Context, e *model.Employee) (*model.Employee, error)
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (*model.Employee, error)
	ListEmployees(ctx context.Context, f model.EmployeeFilter) ([]model.Employee, int, error)
	UpdateEmployee(ctx context.Context, e *model.Employee) (*model.Employee, error)
	DeleteEmployee(ctx context.Context, id uuid.UUID) error
	IsManagerCycle(ctx context.Context, id, managerID uuid.UUID) (bool, error)
}

// ItemReleaser returns an employee's resources to the pool.
type ItemReleaser interface {
	ReleaseResourceItems(ctx context.Context, employeeID uuid.UUID) ([]model.ResourceItem, error)
}

type EmployeeService struct {
	tx        TxRunner
	employees EmployeeStore
	items     ItemReleaser
	activity  Recorder
	clock     clockwork.Clock
	logger    *zerolog.Logger
}

func NewEmployeeService(tx TxRunner, employees EmployeeStore, items ItemReleaser, activity Recorder, clock clockwork.Clock, logger *zerolog.Logger) *EmployeeService {
	return &EmployeeService{
		tx:        tx,
		employees: employees,
		items:     items,
		activity:  activity,
		clock:     clock,
		logger:    logger,
	}
}

type CreateEmployeeInput struct {
	EmployeeCode    string
	FirstName       string
	LastName        string
	Email           string
	Phone           *string
	Department      string
	Position        string
	ManagerID       *uuid.UUID
	Status          model.EmployeeStatus
	HireDate        time.Time
	TerminationDate *time.Time
}

// UpdateEmployeeInput is a partial update. ClearManager and an empty
// Phone remove those values.
type UpdateEmployeeInput struct {
	EmployeeCode    *string
	FirstName       *string
	LastName        *string
	Email           *string
	Phone           *string
	Department      *string
	Position        *string
	ManagerID       *uuid.UUID
	ClearManager    bool
	Status          *model.EmployeeStatus
	HireDate        *time.Time
	TerminationDate *time.Time
}

func (s *EmployeeService) Create(ctx context.Context, actor model.Actor, in CreateEmployeeInput) (*model.Employee, error) {
	e := &model.Employee{
		EmployeeCode:    strings.TrimSpace(in.EmployeeCode),
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:           blankToNil(in.Phone),
		Department:      strings.TrimSpace(in.Department),
		Position:        strings.TrimSpace(in.Position),
		ManagerID:       in.ManagerID,
		Status:          in.Status,
		HireDate:        model.Date(in.HireDate),
		TerminationDate: datePtr(in.TerminationDate),
	}
	if e.Status == "" {
		e.Status = model.EmployeeActive
	}

	if err := s.checkTermination(e, in.TerminationDate != nil); err != nil {
		return nil, err
	}

	created, err := s.employees.CreateEmployee(ctx, e)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "employee.created",
		EntityType: model.EntityEmployee,
		EntityID:   created.ID,
		Summary:    "Added employee " + created.FullName(),
		Metadata:   map[string]any{"employeeCode": created.EmployeeCode, "department": created.Department},
	})

	return created, nil
}

func (s *EmployeeService) Get(ctx context.Context, id uuid.UUID) (*model.Employee, error) {
	return s.employees.GetEmployeeByID(ctx, id)
}

type ListEmployeesInput = model.EmployeeFilter

func (s *EmployeeService) List(ctx context.Context, f ListEmployeesInput) (*model.PaginatedResponse[model.Employee], error) {
	items, total, err := s.employees.ListEmployees(ctx, f)
	if err != nil {
		return nil, err
	}
	return model.NewPage(items, f.PageQuery, total), nil
}

// Update applies a partial update. Moving an employee to terminated
// releases every resource assigned to them in the same transaction.
func (s *EmployeeService) Update(ctx context.Context, actor model.Actor, id uuid.UUID, in UpdateEmployeeInput) (*model.Employee, error) {
	var (
		updated    *model.Employee
		released   []model.ResourceItem
		terminated bool
		statusFrom model.EmployeeStatus
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		e, err := s.employees.GetEmployeeByID(ctx, id)
		if err != nil {
			return err
		}
		statusFrom = e.Status

		applyEmployeeUpdate(e, in)

		if in.ManagerID != nil && !in.ClearManager {
			if *in.ManagerID == e.ID {
				return invalid("managerId", "an employee cannot be their own manager")
			}
			cycle, err := s.employees.IsManagerCycle(ctx, e.ID, *in.ManagerID)
			if err != nil {
				return err
			}
			if cycle {
				return invalid("managerId", "would create a reporting loop")
			}
		}

		if err := s.checkTermination(e, in.TerminationDate != nil); err != nil {
			return err
		}

		updated, err = s.employees.UpdateEmployee(ctx, e)
		if err != nil {
			return err
		}

		terminated = statusFrom != model.EmployeeTerminated && updated.Status == model.EmployeeTerminated
		if terminated {
			released, err = s.items.ReleaseResourceItems(ctx, updated.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action, summary := "employee.updated", "Updated employee "+updated.FullName()
	meta := map[string]any{}
	if statusFrom != updated.Status {
		meta["status"] = map[string]any{"from": statusFrom, "to": updated.Status}
	}
	if terminated {
		action, summary = "employee.terminated", "Terminated employee "+updated.FullName()
		meta["releasedItems"] = len(released)
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     action,
		EntityType: model.EntityEmployee,
		EntityID:   updated.ID,
		Summary:    summary,
		Metadata:   meta,
	})
	s.recordReleased(ctx, actor, updated, released)

	return updated, nil
}

// Delete removes an employee. Assigned resources are released first so
// no item is left assigned to nobody.
func (s *EmployeeService) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	var (
		e        *model.Employee
		released []model.ResourceItem
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = s.employees.GetEmployeeByID(ctx, id)
		if err != nil {
			return err
		}
		released, err = s.items.ReleaseResourceItems(ctx, id)
		if err != nil {
			return err
		}
		return s.employees.DeleteEmployee(ctx, id)
	})
	if err != nil {
		return err
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "employee.deleted",
		EntityType: model.EntityEmployee,
		EntityID:   e.ID,
		Summary:    "Deleted employee " + e.FullName(),
		Metadata:   map[string]any{"employeeCode": e.EmployeeCode},
	})
	s.recordReleased(ctx, actor, e, released)

	return nil
}

func (s *EmployeeService) recordReleased(ctx context.Context, actor model.Actor, e *model.Employee, items []model.ResourceItem) {
	for _, item := range items {
		s.activity.Record(ctx, &actor, Entry{
			Action:     "resource_item.released",
			EntityType: model.EntityResourceItem,
			EntityID:   item.ID,
			Summary:    "Released " + item.Name + " from " + e.FullName(),
			Metadata:   map[string]any{"employeeId": e.ID},
		})
	}
}

// checkTermination enforces the termination date rules. explicit reports
// whether the caller supplied a termination date.
func (s *EmployeeService) checkTermination(e *model.Employee, explicit bool) error {
	if !e.Status.Valid() {
		return invalid("status", "must be one of: active, on_leave, terminated")
	}

	if e.Status != model.EmployeeTerminated {
		if explicit {
			return invalid("terminationDate", "is only allowed for terminated employees")
		}
		e.TerminationDate = nil
		return nil
	}

	if e.TerminationDate == nil {
		today := model.Date(s.clock.Now())
		e.TerminationDate = &today
	}
	if e.TerminationDate.Before(e.HireDate) {
		return invalid("terminationDate", "must not be before the hire date")
	}
	return nil
}

func applyEmployeeUpdate(e *model.Employee, in UpdateEmployeeInput) {
	if in.EmployeeCode != nil {
		e.EmployeeCode = strings.TrimSpace(*in.EmployeeCode)
	}
	if in.FirstName != nil {
		e.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		e.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		e.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		e.Phone = blankToNil(in.Phone)
	}
	if in.Department != nil {
		e.Department = strings.TrimSpace(*in.Department)
	}
	if in.Position != nil {
		e.Position = strings.TrimSpace(*in.Position)
	}
	if in.ClearManager {
		e.ManagerID = nil
	} else if in.ManagerID != nil {
		e.ManagerID = in.ManagerID
	}
	if in.Status != nil {
		e.Status = *in.Status
	}
	if in.HireDate != nil {
		e.HireDate = model.Date(*in.HireDate)
	}
	if in.TerminationDate != nil {
		e.TerminationDate = datePtr(in.TerminationDate)
	}
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.Date(*t)
	return &d
}
