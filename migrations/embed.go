// Package migrations — SQL-миграции схемы, встроенные в бинарь.
// Применяются на старте API в лексикографическом порядке имён (001, 002, ...).
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
