// Package schema implements the dynamic property schemas attached to
// resource types.
//
// A Schema is an ordered list of property definitions. Items of a resource
// type carry a JSON property bag that is validated and coerced against the
// schema whenever it is written (schema-on-write). Once the first item
// exists the schema is locked and may only evolve in backward-compatible
// ways, see CheckEvolution.
package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Type is the value type of a property.
type Type string

const (
	TypeString  Type = "string"
	TypeText    Type = "text"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeDate    Type = "date"
	TypeEnum    Type = "enum"
)

// Limits on definitions and values.
const (
	MaxProperties   = 64
	MaxStringLength = 255
	MaxTextLength   = 10000
	MaxLabelLength  = 120
	MaxEnumOptions  = 100
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Valid reports whether t is a known property type.
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeText, TypeNumber, TypeInteger, TypeBoolean, TypeDate, TypeEnum:
		return true
	}
	return false
}

// Property defines a single key of the property bag.
type Property struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Type        Type     `json:"type"`
	Required    bool     `json:"required"`
	Options     []string `json:"options,omitempty"`
	Default     any      `json:"default,omitempty"`
	Description string   `json:"description,omitempty"`
}

// HasDefault reports whether the property carries a default value.
func (p Property) HasDefault() bool {
	return p.Default != nil
}

// Schema is the ordered list of property definitions of a resource type.
type Schema []Property

// Lookup returns the property with the given key.
func (s Schema) Lookup(key string) (Property, bool) {
	for _, p := range s {
		if p.Key == key {
			return p, true
		}
	}
	return Property{}, false
}

// Keys returns the property keys in definition order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for _, p := range s {
		keys = append(keys, p.Key)
	}
	return keys
}

// Normalize trims labels and keys, fills missing labels from keys and
// coerces defaults to their property type. It returns a new schema.
func (s Schema) Normalize() (Schema, error) {
	out := make(Schema, 0, len(s))
	var problems FieldErrors

	for _, p := range s {
		p.Key = strings.TrimSpace(p.Key)
		p.Label = strings.TrimSpace(p.Label)
		p.Description = strings.TrimSpace(p.Description)
		if p.Label == "" {
			p.Label = humanizeKey(p.Key)
		}
		if p.Type != TypeEnum {
			p.Options = nil
		}
		if p.Default != nil && p.Type.Valid() {
			v, err := CoerceValue(p, p.Default)
			if err != nil {
				problems = append(problems, FieldError{Key: p.Key, Message: "default " + err.Error()})
			}
			p.Default = v
		}
		out = append(out, p)
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return out, nil
}

// Validate checks that the definitions are well-formed: valid and unique
// keys, known types, enum options and coercible defaults.
func (s Schema) Validate() error {
	var problems FieldErrors

	if len(s) > MaxProperties {
		problems = append(problems, FieldError{Key: "schema", Message: fmt.Sprintf("must not define more than %d properties", MaxProperties)})
	}

	seen := make(map[string]bool, len(s))
	for i, p := range s {
		ref := p.Key
		if ref == "" {
			ref = fmt.Sprintf("schema[%d]", i)
		}

		if !keyPattern.MatchString(p.Key) {
			problems = append(problems, FieldError{Key: ref, Message: "key must start with a lowercase letter and contain only lowercase letters, digits and underscores"})
		}
		if seen[p.Key] {
			problems = append(problems, FieldError{Key: ref, Message: "key is defined more than once"})
		}
		seen[p.Key] = true

		if len(p.Label) > MaxLabelLength {
			problems = append(problems, FieldError{Key: ref, Message: fmt.Sprintf("label must not exceed %d characters", MaxLabelLength)})
		}

		if !p.Type.Valid() {
			problems = append(problems, FieldError{Key: ref, Message: fmt.Sprintf("unknown type %q", p.Type)})
			continue
		}

		if allowed, ok := legacyTypes[p.Key]; ok && !slices.Contains(allowed, p.Type) {
			problems = append(problems, FieldError{Key: ref, Message: fmt.Sprintf("type must be one of %s to match the %s column", joinTypes(allowed), p.Key)})
		}

		if p.Type == TypeEnum {
			problems = append(problems, validateOptions(ref, p.Options)...)
		} else if len(p.Options) > 0 {
			problems = append(problems, FieldError{Key: ref, Message: "options are only allowed for enum properties"})
		}

		if p.Default != nil {
			if _, err := CoerceValue(p, p.Default); err != nil {
				problems = append(problems, FieldError{Key: ref, Message: "default " + err.Error()})
			}
		}
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

func joinTypes(types []Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func validateOptions(ref string, options []string) FieldErrors {
	var problems FieldErrors

	if len(options) == 0 {
		return FieldErrors{{Key: ref, Message: "enum properties need at least one option"}}
	}
	if len(options) > MaxEnumOptions {
		problems = append(problems, FieldError{Key: ref, Message: fmt.Sprintf("must not define more than %d options", MaxEnumOptions)})
	}

	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if strings.TrimSpace(o) == "" {
			problems = append(problems, FieldError{Key: ref, Message: "options must not be blank"})
			continue
		}
		if seen[o] {
			problems = append(problems, FieldError{Key: ref, Message: fmt.Sprintf("option %q is listed more than once", o)})
		}
		seen[o] = true
	}
	return problems
}

func humanizeKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FieldError describes a problem with a single property key.
type FieldError struct {
	Key     string
	Message string
}

// FieldErrors collects every problem found in one pass so that clients can
// fix all of them at once.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "schema: no errors"
	}
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Key+": "+fe.Message)
	}
	return "schema: " + strings.Join(parts, "; ")
}
