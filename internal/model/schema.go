package model

// CurrentSchemaVersion is the schema marker this build understands.
const CurrentSchemaVersion = "1.0"

// SchemaVersionKey is the SchemaDatum row holding the schema marker.
const SchemaVersionKey = "schema_version"

// SchemaDatum is a key/value row for database metadata.
type SchemaDatum struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}
