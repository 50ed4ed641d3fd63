// Package repository holds the SQL of the application. Each repository
// scans rows by column name into the model types.
package repository
