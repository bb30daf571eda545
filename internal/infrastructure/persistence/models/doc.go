// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
//   - Domain entities carry no GORM tags
//   - Persistence models hold the table mappings and column constraints
//   - ToDomain / FromDomain convert between the two
//
// The schema itself is owned by the SQL migrations; the GORM tags mirror it so
// AutoMigrate produces an equivalent SQLite schema in unit tests.
package models
