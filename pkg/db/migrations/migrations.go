// Package migrations embeds the goose SQL migrations for the hatchd schema.
package migrations

import (
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

func init() {
	goose.SetBaseFS(files)
}
