// Package migrations embeds the schema migrations shipped with the binaries.
package migrations

import "embed"

// BigQuery holds the files under bigquery/, named NNNN_name.sql.
//
//go:embed bigquery/*.sql
var BigQuery embed.FS
