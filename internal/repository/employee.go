package repository

import (
	"context"
	"fmt"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type EmployeeRepository struct {
	*db
}

func employeeArgs(e *model.Employee) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":               e.ID,
		"employee_code":    e.EmployeeCode,
		"first_name":       e.FirstName,
		"last_name":        e.LastName,
		"email":            e.Email,
		"phone":            e.Phone,
		"department":       e.Department,
		"position":         e.Position,
		"manager_id":       e.ManagerID,
		"status":           e.Status,
		"hire_date":        e.HireDate,
		"termination_date": e.TerminationDate,
	}
}

func (r *EmployeeRepository) CreateEmployee(ctx context.Context, e *model.Employee) (*model.Employee, error) {
	stmt := `
		INSERT INTO employees (
			employee_code, first_name, last_name, email, phone, department,
			position, manager_id, status, hire_date, termination_date
		) VALUES (
			@employee_code, @first_name, @last_name, @email, @phone, @department,
			@position, @manager_id, @status, @hire_date, @termination_date
		)
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, employeeArgs(e))
	return one[model.Employee](rows, err, "employees", "insert")
}

func (r *EmployeeRepository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (*model.Employee, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM employees WHERE id = @id`, pgx.NamedArgs{"id": id})
	return one[model.Employee](rows, err, "employees", "get")
}

func (r *EmployeeRepository) ListEmployees(ctx context.Context, f model.EmployeeFilter) ([]model.Employee, int, error) {
	w := newWhere()
	if f.Department != nil {
		w.add("department = @department", "department", *f.Department)
	}
	if f.Status != nil {
		w.add("status = @status", "status", *f.Status)
	}
	if f.ManagerID != nil {
		w.add("manager_id = @manager_id", "manager_id", *f.ManagerID)
	}
	if f.Search != nil {
		w.search(*f.Search, "first_name", "last_name", "email", "employee_code", "first_name || ' ' || last_name")
	}
	return list[model.Employee](ctx, r.q(ctx), "employees", w, "last_name, first_name, id", f.PageQuery)
}

// UpdateEmployee writes every mutable column of e.
func (r *EmployeeRepository) UpdateEmployee(ctx context.Context, e *model.Employee) (*model.Employee, error) {
	stmt := `
		UPDATE employees SET
			employee_code    = @employee_code,
			first_name       = @first_name,
			last_name        = @last_name,
			email            = @email,
			phone            = @phone,
			department       = @department,
			position         = @position,
			manager_id       = @manager_id,
			status           = @status,
			hire_date        = @hire_date,
			termination_date = @termination_date
		WHERE id = @id
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, employeeArgs(e))
	return one[model.Employee](rows, err, "employees", "update")
}

func (r *EmployeeRepository) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM employees WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete employee: %w", err)
	}
	return affected(tag.RowsAffected(), "employees")
}

// IsManagerCycle reports whether making managerID the manager of id would
// create a reporting loop.
func (r *EmployeeRepository) IsManagerCycle(ctx context.Context, id, managerID uuid.UUID) (bool, error) {
	stmt := `
		WITH RECURSIVE chain AS (
			SELECT id, manager_id, 1 AS depth FROM employees WHERE id = @manager_id
			UNION ALL
			SELECT e.id, e.manager_id, c.depth + 1
			FROM employees e JOIN chain c ON e.id = c.manager_id
			WHERE c.depth < 64
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = @id)
	`
	var cycle bool
	if err := r.q(ctx).QueryRow(ctx, stmt, pgx.NamedArgs{"id": id, "manager_id": managerID}).Scan(&cycle); err != nil {
		return false, fmt.Errorf("failed to check manager chain: %w", err)
	}
	return cycle, nil
}
