// Package validation binds request payloads and turns validator errors
// into field-level HTTP errors.
package validation
