package reading

import "embed"

// schemaFS holds the sensor_data migrations applied by Store.InitSchema.
//
//go:embed schema/*.up.sql
var schemaFS embed.FS
