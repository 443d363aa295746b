// Package migrations embeds the SQL schema.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Files returns the embedded migration names in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the SQL of one migration.
func Read(name string) (string, error) {
	body, err := fs.ReadFile(files, name)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
