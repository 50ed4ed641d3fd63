package model

import (
	"time"

	"github.com/deppfellow/erm/internal/lib/schema"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ResourceType struct {
	Base
	Name          string        `json:"name" db:"name"`
	Slug          string        `json:"slug" db:"slug"`
	Description   string        `json:"description" db:"description"`
	Schema        schema.Schema `json:"schema" db:"schema"`
	SchemaVersion int           `json:"schemaVersion" db:"schema_version"`
	SchemaLocked  bool          `json:"schemaLocked" db:"schema_locked"`
}

type ItemStatus string

const (
	ItemAvailable   ItemStatus = "available"
	ItemAssigned    ItemStatus = "assigned"
	ItemMaintenance ItemStatus = "maintenance"
	ItemRetired     ItemStatus = "retired"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemAvailable, ItemAssigned, ItemMaintenance, ItemRetired:
		return true
	}
	return false
}

// ResourceItem is one inventory item. The flat legacy columns are kept in
// sync with Properties and are not part of the API.
type ResourceItem struct {
	Base
	ResourceTypeID uuid.UUID           `json:"resourceTypeId" db:"resource_type_id"`
	Name           string              `json:"name" db:"name"`
	Status         ItemStatus          `json:"status" db:"status"`
	AssignedTo     *uuid.UUID          `json:"assignedTo" db:"assigned_to"`
	Properties     map[string]any      `json:"properties" db:"properties"`
	SchemaVersion  int                 `json:"schemaVersion" db:"schema_version"`
	SerialNumber   *string             `json:"-" db:"serial_number"`
	Location       *string             `json:"-" db:"location"`
	PurchaseDate   *time.Time          `json:"-" db:"purchase_date"`
	PurchaseCost   decimal.NullDecimal `json:"-" db:"purchase_cost"`
}

// Legacy returns the flat column values of the item.
func (i *ResourceItem) Legacy() schema.Legacy {
	return schema.Legacy{
		SerialNumber: i.SerialNumber,
		Location:     i.Location,
		PurchaseDate: i.PurchaseDate,
		PurchaseCost: i.PurchaseCost,
	}
}

// SetLegacy copies l into the flat columns.
func (i *ResourceItem) SetLegacy(l schema.Legacy) {
	i.SerialNumber = l.SerialNumber
	i.Location = l.Location
	i.PurchaseDate = l.PurchaseDate
	i.PurchaseCost = l.PurchaseCost
}

type ResourceItemFilter struct {
	ResourceTypeID *uuid.UUID
	Status         *ItemStatus
	AssignedTo     *uuid.UUID
	Search         *string
	PageQuery
}
