package schema

import (
	"fmt"
	"slices"
)

// CheckEvolution reports whether next may replace current.
//
// An unlocked schema may change freely. A locked schema, i.e. one whose
// resource type already has items, must stay readable by every stored
// property bag:
//   - existing properties keep their key and type
//   - an optional property cannot become required
//   - enum properties cannot drop options
//   - new properties are optional or carry a default
func CheckEvolution(current, next Schema, locked bool) error {
	if !locked {
		return nil
	}

	var problems FieldErrors

	for _, old := range current {
		p, ok := next.Lookup(old.Key)
		if !ok {
			problems = append(problems, FieldError{Key: old.Key, Message: "cannot be removed from a locked schema"})
			continue
		}
		if p.Type != old.Type {
			problems = append(problems, FieldError{Key: old.Key, Message: fmt.Sprintf("type cannot change from %s to %s on a locked schema", old.Type, p.Type)})
		}
		if p.Required && !old.Required {
			problems = append(problems, FieldError{Key: old.Key, Message: "cannot become required on a locked schema"})
		}
		if old.Type == TypeEnum && p.Type == TypeEnum {
			for _, o := range old.Options {
				if !slices.Contains(p.Options, o) {
					problems = append(problems, FieldError{Key: old.Key, Message: fmt.Sprintf("option %q cannot be removed from a locked schema", o)})
				}
			}
		}
	}

	for _, p := range next {
		if _, ok := current.Lookup(p.Key); ok {
			continue
		}
		if p.Required && !p.HasDefault() {
			problems = append(problems, FieldError{Key: p.Key, Message: "new properties on a locked schema must be optional or have a default"})
		}
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// Changed reports whether next differs from current. Reordering counts as
// a change since forms render properties in schema order.
func Changed(current, next Schema) bool {
	if len(current) != len(next) {
		return true
	}
	for i := range current {
		a, b := current[i], next[i]
		if a.Key != b.Key || a.Type != b.Type || a.Required != b.Required {
			return true
		}
		if a.Label != b.Label || a.Description != b.Description {
			return true
		}
		if !slices.Equal(a.Options, b.Options) {
			return true
		}
		if fmt.Sprint(a.Default) != fmt.Sprint(b.Default) {
			return true
		}
	}
	return false
}

// Upgrade fills defaults of properties that were added to the schema after
// props was written. Existing values are left untouched.
func (s Schema) Upgrade(props map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range props {
		out[k] = v
	}
	for _, p := range s {
		if _, ok := out[p.Key]; ok || !p.HasDefault() {
			continue
		}
		if v, err := CoerceValue(p, p.Default); err == nil {
			out[p.Key] = v
		}
	}
	return out
}
