// Package sqlerr turns PostgreSQL driver errors into HTTP errors. Constraint
// violations map to 400/409 with a readable message, missing rows wrapped
// with their table name map to 404, and anything else becomes a 500.
package sqlerr
