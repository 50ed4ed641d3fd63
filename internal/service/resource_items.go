package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/lib/rbac"
	"github.com/deppfellow/erm/internal/lib/schema"
	"github.com/deppfellow/erm/internal/metrics"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
)

type ResourceItemStore interface {
	CreateResourceItem(ctx context.Context, i *model.ResourceItem) (*model.ResourceItem, error)
	GetResourceItemByID(ctx context.Context, id uuid.UUID) (*model.ResourceItem, error)
	GetResourceItemForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceItem, error)
	ListResourceItems(ctx context.Context, f model.ResourceItemFilter) ([]model.ResourceItem, int, error)
	UpdateResourceItem(ctx context.Context, i *model.ResourceItem) (*model.ResourceItem, error)
	DeleteResourceItem(ctx context.Context, id uuid.UUID) error
	CountResourceItemsByType(ctx context.Context, typeID uuid.UUID) (int, error)
}

// ResourceApproverRole reviews resource requests.
const ResourceApproverRole = model.RoleHR

type CreateResourceItemInput struct {
	ResourceTypeID uuid.UUID
	Name           string
	Status         model.ItemStatus
	Properties     map[string]any
}

// CreateItem validates the properties against the type's schema and
// stores the item. The first item of a type locks its schema.
func (s *ResourceService) CreateItem(ctx context.Context, actor model.Actor, in CreateResourceItemInput) (*model.ResourceItem, error) {
	status := in.Status
	if status == "" {
		status = model.ItemAvailable
	}
	if err := checkWritableStatus(status); err != nil {
		return nil, err
	}

	var (
		created  *model.ResourceItem
		rt       *model.ResourceType
		lockedBy bool
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		rt, err = s.types.GetResourceTypeForUpdate(ctx, in.ResourceTypeID)
		if err != nil {
			return err
		}

		props, err := rt.Schema.Coerce(in.Properties, schema.ModeCreate)
		if err != nil {
			return schemaError(err, "properties")
		}

		item := &model.ResourceItem{
			ResourceTypeID: rt.ID,
			Name:           strings.TrimSpace(in.Name),
			Status:         status,
			Properties:     props,
			SchemaVersion:  rt.SchemaVersion,
		}
		if err := mirror(item, rt.Schema, props); err != nil {
			return err
		}

		created, err = s.items.CreateResourceItem(ctx, item)
		if err != nil {
			return err
		}

		if !rt.SchemaLocked {
			lockedBy, err = s.types.LockResourceTypeSchema(ctx, rt.ID)
			if err != nil {
				return err
			}
			rt.SchemaLocked = true
		}
		return nil
	})
	countWrite("create", err)
	if err != nil {
		return nil, err
	}

	if lockedBy {
		s.invalidate(ctx, rt.ID)
		s.activity.Record(ctx, &actor, Entry{
			Action:     "resource_type.schema_locked",
			EntityType: model.EntityResourceType,
			EntityID:   rt.ID,
			Summary:    "Locked schema of " + rt.Name,
			Metadata:   map[string]any{"schemaVersion": rt.SchemaVersion, "firstItemId": created.ID},
		})
	}
	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_item.created",
		EntityType: model.EntityResourceItem,
		EntityID:   created.ID,
		Summary:    fmt.Sprintf("Added %s (%s)", created.Name, rt.Name),
		Metadata:   map[string]any{"resourceTypeId": rt.ID, "status": created.Status},
	})

	return present(created, rt), nil
}

func (s *ResourceService) GetItem(ctx context.Context, id uuid.UUID) (*model.ResourceItem, error) {
	item, err := s.items.GetResourceItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rt, err := s.cache.GetResourceTypeByID(ctx, item.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	return present(item, rt), nil
}

func (s *ResourceService) ListItems(ctx context.Context, f model.ResourceItemFilter) (*model.PaginatedResponse[model.ResourceItem], error) {
	items, total, err := s.items.ListResourceItems(ctx, f)
	if err != nil {
		return nil, err
	}

	types := map[uuid.UUID]*model.ResourceType{}
	for i := range items {
		rt, ok := types[items[i].ResourceTypeID]
		if !ok {
			rt, err = s.cache.GetResourceTypeByID(ctx, items[i].ResourceTypeID)
			if err != nil {
				return nil, err
			}
			types[rt.ID] = rt
		}
		items[i] = *present(&items[i], rt)
	}

	return model.NewPage(items, f.PageQuery, total), nil
}

type UpdateResourceItemInput struct {
	Name   *string
	Status *model.ItemStatus
	// Properties is merged over the current bag; null clears a key.
	Properties map[string]any
}

func (s *ResourceService) UpdateItem(ctx context.Context, actor model.Actor, id uuid.UUID, in UpdateResourceItemInput) (*model.ResourceItem, error) {
	if in.Status != nil {
		if err := checkWritableStatus(*in.Status); err != nil {
			return nil, err
		}
	}

	var (
		updated *model.ResourceItem
		rt      *model.ResourceType
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.items.GetResourceItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		rt, err = s.types.GetResourceTypeByID(ctx, item.ResourceTypeID)
		if err != nil {
			return err
		}

		if in.Name != nil {
			item.Name = strings.TrimSpace(*in.Name)
		}
		if in.Status != nil && *in.Status != item.Status {
			if item.Status == model.ItemAssigned {
				return conflict("Unassign the item before changing its status", "ITEM_ASSIGNED")
			}
			item.Status = *in.Status
		}

		current := rt.Schema.Pick(present(item, rt).Properties)
		props := current
		if in.Properties != nil {
			props, err = rt.Schema.Merge(current, in.Properties)
			if err != nil {
				return schemaError(err, "properties")
			}
		}

		item.Properties = props
		item.SchemaVersion = rt.SchemaVersion
		if err := mirror(item, rt.Schema, props); err != nil {
			return err
		}

		updated, err = s.items.UpdateResourceItem(ctx, item)
		return err
	})
	countWrite("update", err)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_item.updated",
		EntityType: model.EntityResourceItem,
		EntityID:   updated.ID,
		Summary:    "Updated " + updated.Name,
		Metadata:   map[string]any{"status": updated.Status, "schemaVersion": updated.SchemaVersion},
	})

	return present(updated, rt), nil
}

func (s *ResourceService) DeleteItem(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	var item *model.ResourceItem

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.items.GetResourceItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if item.Status == model.ItemAssigned {
			return conflict("Unassign the item before deleting it", "ITEM_ASSIGNED")
		}
		return s.items.DeleteResourceItem(ctx, id)
	})
	countWrite("delete", err)
	if err != nil {
		return err
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_item.deleted",
		EntityType: model.EntityResourceItem,
		EntityID:   item.ID,
		Summary:    "Deleted " + item.Name,
		Metadata:   map[string]any{"resourceTypeId": item.ResourceTypeID},
	})
	return nil
}

// AssignItem hands an available item to an active employee. It joins the
// caller's transaction and records nothing.
func (s *ResourceService) AssignItem(ctx context.Context, itemID, employeeID uuid.UUID) (*model.ResourceItem, *model.Employee, error) {
	item, err := s.items.GetResourceItemForUpdate(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkAssignable(item); err != nil {
		return nil, nil, err
	}

	emp, err := s.employees.GetEmployeeByID(ctx, employeeID)
	if err != nil {
		return nil, nil, err
	}
	if emp.Status != model.EmployeeActive {
		return nil, nil, conflict("Only active employees can be assigned resources", "EMPLOYEE_NOT_ACTIVE")
	}

	item.Status = model.ItemAssigned
	item.AssignedTo = &emp.ID
	assigned, err := s.items.UpdateResourceItem(ctx, item)
	if err != nil {
		return nil, nil, err
	}
	return assigned, emp, nil
}

func (s *ResourceService) Assign(ctx context.Context, actor model.Actor, itemID, employeeID uuid.UUID) (*model.ResourceItem, error) {
	var (
		item *model.ResourceItem
		emp  *model.Employee
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		item, emp, err = s.AssignItem(ctx, itemID, employeeID)
		return err
	})
	countWrite("assign", err)
	if err != nil {
		return nil, err
	}

	s.recordAssigned(ctx, actor, item, emp, nil)
	return s.presentCached(ctx, item)
}

func (s *ResourceService) Unassign(ctx context.Context, actor model.Actor, itemID uuid.UUID) (*model.ResourceItem, error) {
	var (
		item     *model.ResourceItem
		previous uuid.UUID
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.items.GetResourceItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if current.Status != model.ItemAssigned || current.AssignedTo == nil {
			return conflict("Item is not assigned", "ITEM_NOT_ASSIGNED")
		}
		previous = *current.AssignedTo

		current.Status = model.ItemAvailable
		current.AssignedTo = nil
		item, err = s.items.UpdateResourceItem(ctx, current)
		return err
	})
	countWrite("unassign", err)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_item.unassigned",
		EntityType: model.EntityResourceItem,
		EntityID:   item.ID,
		Summary:    "Returned " + item.Name + " to the pool",
		Metadata:   map[string]any{"employeeId": previous},
	})
	return s.presentCached(ctx, item)
}

type RequestItemInput struct {
	// EmployeeID defaults to the employee linked to the caller's account.
	EmployeeID *uuid.UUID
	Reason     string
}

// Request asks for an item to be assigned. The request becomes a pending
// approval decided by HR.
func (s *ResourceService) Request(ctx context.Context, actor model.Actor, itemID uuid.UUID, in RequestItemInput) (*model.ApprovalRequest, error) {
	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	target := in.EmployeeID
	if target == nil {
		if user.EmployeeID == nil {
			return nil, invalid("employeeId", "your account is not linked to an employee record")
		}
		target = user.EmployeeID
	}
	onBehalf := user.EmployeeID == nil || *user.EmployeeID != *target
	if onBehalf && !rbac.HasPermission(actor.Role, rbac.ResourcesAssign) {
		return nil, errs.NewForbiddenError("You can only request resources for yourself", true)
	}

	var req *model.ApprovalRequest
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.items.GetResourceItemByID(ctx, itemID)
		if err != nil {
			return err
		}
		if err := checkAssignable(item); err != nil {
			return err
		}
		emp, err := s.employees.GetEmployeeByID(ctx, *target)
		if err != nil {
			return err
		}
		if emp.Status != model.EmployeeActive {
			return conflict("Only active employees can be assigned resources", "EMPLOYEE_NOT_ACTIVE")
		}

		payload, err := toPayload(model.AssignmentPayload{EmployeeID: emp.ID, Reason: strings.TrimSpace(in.Reason)})
		if err != nil {
			return err
		}

		req, err = s.approvals.Open(ctx, actor, OpenApprovalInput{
			Kind:         model.ApprovalResourceAssignment,
			SubjectID:    item.ID,
			Title:        fmt.Sprintf("Assign %s to %s", item.Name, emp.FullName()),
			ApproverRole: ResourceApproverRole,
			Payload:      payload,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_item.requested",
		EntityType: model.EntityResourceItem,
		EntityID:   itemID,
		Summary:    req.Title,
		Metadata:   map[string]any{"approvalRequestId": req.ID, "employeeId": *target},
	})
	s.approvals.Announce(ctx, req)

	return req, nil
}

// ApplyDecision assigns the item once an assignment request is approved.
// Rejected and cancelled requests leave the item untouched.
func (s *ResourceService) ApplyDecision(ctx context.Context, req *model.ApprovalRequest) error {
	if req.Status != model.ApprovalApproved {
		return nil
	}
	p, err := fromPayload(req.Payload)
	if err != nil {
		return err
	}
	_, _, err = s.AssignItem(ctx, req.SubjectID, p.EmployeeID)
	countWrite("assign", err)
	return err
}

func (s *ResourceService) RecordDecision(ctx context.Context, actor model.Actor, req *model.ApprovalRequest) {
	if req.Status != model.ApprovalApproved {
		return
	}
	logger := loggerFrom(ctx, s.logger)

	p, err := fromPayload(req.Payload)
	if err != nil {
		logger.Warn().Err(err).Str("request_id", req.ID.String()).Msg("undecodable assignment payload")
		return
	}
	item, err := s.items.GetResourceItemByID(ctx, req.SubjectID)
	if err != nil {
		logger.Warn().Err(err).Str("item_id", req.SubjectID.String()).Msg("failed to load assigned item")
		return
	}
	emp, err := s.employees.GetEmployeeByID(ctx, p.EmployeeID)
	if err != nil {
		logger.Warn().Err(err).Str("employee_id", p.EmployeeID.String()).Msg("failed to load assignee")
		return
	}
	s.recordAssigned(ctx, actor, item, emp, &req.ID)
}

func (s *ResourceService) recordAssigned(ctx context.Context, actor model.Actor, item *model.ResourceItem, emp *model.Employee, requestID *uuid.UUID) {
	meta := map[string]any{"employeeId": emp.ID}
	if requestID != nil {
		meta["approvalRequestId"] = *requestID
	}
	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_item.assigned",
		EntityType: model.EntityResourceItem,
		EntityID:   item.ID,
		Summary:    "Assigned " + item.Name + " to " + emp.FullName(),
		Metadata:   meta,
	})
}

func (s *ResourceService) presentCached(ctx context.Context, item *model.ResourceItem) (*model.ResourceItem, error) {
	rt, err := s.cache.GetResourceTypeByID(ctx, item.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	return present(item, rt), nil
}

// present returns item as clients see it: legacy column values merged into
// the bag and defaults of properties added after the item was written.
func present(item *model.ResourceItem, rt *model.ResourceType) *model.ResourceItem {
	out := *item
	props := item.Legacy().MergeInto(item.Properties)
	if item.SchemaVersion < rt.SchemaVersion {
		props = rt.Schema.Upgrade(props)
	}
	out.Properties = props
	return &out
}

// mirror copies the legacy keys of props into the flat columns of item.
func mirror(item *model.ResourceItem, s schema.Schema, props map[string]any) error {
	l, err := schema.MirrorLegacy(s, props, item.Legacy())
	if err != nil {
		return invalid("properties", err.Error())
	}
	item.SetLegacy(l)
	return nil
}

func checkWritableStatus(status model.ItemStatus) error {
	if !status.Valid() {
		return invalid("status", "must be one of: available, maintenance, retired")
	}
	if status == model.ItemAssigned {
		return invalid("status", "use the assign operation to assign an item")
	}
	return nil
}

func checkAssignable(item *model.ResourceItem) error {
	switch item.Status {
	case model.ItemAvailable:
		return nil
	case model.ItemRetired:
		return conflict("Retired items cannot be assigned", "ITEM_RETIRED")
	case model.ItemAssigned:
		return conflict("Item is already assigned", "ITEM_ALREADY_ASSIGNED")
	}
	return conflict("Item is not available", "ITEM_UNAVAILABLE")
}

func countWrite(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.ResourceItemWrites.WithLabelValues(op, result).Inc()
}

func toPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromPayload(m map[string]any) (model.AssignmentPayload, error) {
	var p model.AssignmentPayload
	b, err := json.Marshal(m)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decoding assignment payload: %w", err)
	}
	if p.EmployeeID == uuid.Nil {
		return p, fmt.Errorf("assignment payload has no employee")
	}
	return p, nil
}
