package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Property keys backed by the flat columns that resource items had before
// the property bag existed.
const (
	LegacySerialNumber = "serial_number"
	LegacyLocation     = "location"
	LegacyPurchaseDate = "purchase_date"
	LegacyPurchaseCost = "purchase_cost"
)

// LegacyKeys lists the property keys mirrored into flat columns.
var LegacyKeys = []string{LegacySerialNumber, LegacyLocation, LegacyPurchaseDate, LegacyPurchaseCost}

// legacyTypes restricts the property types of legacy keys to values their
// columns can hold.
var legacyTypes = map[string][]Type{
	LegacySerialNumber: {TypeString, TypeText, TypeEnum},
	LegacyLocation:     {TypeString, TypeText, TypeEnum},
	LegacyPurchaseDate: {TypeDate},
	LegacyPurchaseCost: {TypeNumber, TypeInteger},
}

// LegacyProperties returns schema definitions matching the flat columns.
// New resource types can start from them to stay compatible with reports
// that still read the columns.
func LegacyProperties() Schema {
	return Schema{
		{Key: LegacySerialNumber, Label: "Serial Number", Type: TypeString},
		{Key: LegacyLocation, Label: "Location", Type: TypeString},
		{Key: LegacyPurchaseDate, Label: "Purchase Date", Type: TypeDate},
		{Key: LegacyPurchaseCost, Label: "Purchase Cost", Type: TypeNumber},
	}
}

// Legacy holds the flat column values of a resource item.
type Legacy struct {
	SerialNumber *string
	Location     *string
	PurchaseDate *time.Time
	PurchaseCost decimal.NullDecimal
}

// ExtractLegacy derives the flat column values from a coerced property bag.
// Keys missing from props produce NULL columns.
func ExtractLegacy(props map[string]any) (Legacy, error) {
	var l Legacy

	if v, ok := props[LegacySerialNumber]; ok && v != nil {
		s, err := cast.ToStringE(v)
		if err != nil {
			return Legacy{}, fmt.Errorf("serial_number: %w", err)
		}
		if s != "" {
			l.SerialNumber = &s
		}
	}

	if v, ok := props[LegacyLocation]; ok && v != nil {
		s, err := cast.ToStringE(v)
		if err != nil {
			return Legacy{}, fmt.Errorf("location: %w", err)
		}
		if s != "" {
			l.Location = &s
		}
	}

	if v, ok := props[LegacyPurchaseDate]; ok && v != nil {
		s, err := cast.ToStringE(v)
		if err != nil {
			return Legacy{}, fmt.Errorf("purchase_date: %w", err)
		}
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			return Legacy{}, fmt.Errorf("purchase_date: %w", err)
		}
		l.PurchaseDate = &d
	}

	if v, ok := props[LegacyPurchaseCost]; ok && v != nil {
		d, err := toDecimal(v)
		if err != nil {
			return Legacy{}, fmt.Errorf("purchase_cost: %w", err)
		}
		l.PurchaseCost = decimal.NewNullDecimal(d.Round(2))
	}

	return l, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case string:
		return decimal.NewFromString(n)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromFloat(f), nil
}

// MergeInto copies column values into props for keys the bag does not
// have. Rows written before the property bag existed only carry columns;
// this makes them readable through the bag.
func (l Legacy) MergeInto(props map[string]any) map[string]any {
	out := make(map[string]any, len(props)+len(LegacyKeys))
	for k, v := range props {
		out[k] = v
	}

	if _, ok := out[LegacySerialNumber]; !ok && l.SerialNumber != nil {
		out[LegacySerialNumber] = *l.SerialNumber
	}
	if _, ok := out[LegacyLocation]; !ok && l.Location != nil {
		out[LegacyLocation] = *l.Location
	}
	if _, ok := out[LegacyPurchaseDate]; !ok && l.PurchaseDate != nil {
		out[LegacyPurchaseDate] = l.PurchaseDate.Format(DateLayout)
	}
	if _, ok := out[LegacyPurchaseCost]; !ok && l.PurchaseCost.Valid {
		out[LegacyPurchaseCost] = l.PurchaseCost.Decimal.InexactFloat64()
	}

	return out
}

// CostText renders PurchaseCost for a NUMERIC column parameter, or nil.
func (l Legacy) CostText() *string {
	if !l.PurchaseCost.Valid {
		return nil
	}
	s := l.PurchaseCost.Decimal.StringFixed(2)
	return &s
}

// MirrorLegacy derives the flat columns for an item written under s.
// Columns whose key s does not define keep their value from prev, so rows
// that predate the property bag do not lose data on update.
func MirrorLegacy(s Schema, props map[string]any, prev Legacy) (Legacy, error) {
	l, err := ExtractLegacy(props)
	if err != nil {
		return Legacy{}, err
	}
	if _, ok := s.Lookup(LegacySerialNumber); !ok {
		l.SerialNumber = prev.SerialNumber
	}
	if _, ok := s.Lookup(LegacyLocation); !ok {
		l.Location = prev.Location
	}
	if _, ok := s.Lookup(LegacyPurchaseDate); !ok {
		l.PurchaseDate = prev.PurchaseDate
	}
	if _, ok := s.Lookup(LegacyPurchaseCost); !ok {
		l.PurchaseCost = prev.PurchaseCost
	}
	return l, nil
}

// Pick returns the entries of props whose key s defines.
func (s Schema) Pick(props map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for _, p := range s {
		if v, ok := props[p.Key]; ok {
			out[p.Key] = v
		}
	}
	return out
}
