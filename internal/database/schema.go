package database

import (
	"io/fs"
	"sort"
	"strings"

	"github.com/famproject/sigchain/internal/database/migrations"
)

// Schema returns the full up-to-date DDL by concatenating the embedded up
// migrations in version order. Tests apply it directly to in-memory
// databases instead of driving the migration machinery.
func Schema() string {
	files := migrations.Files()
	entries, err := fs.Glob(files, "files/*.up.sql")
	if err != nil {
		// The embed FS is compiled in; a glob failure means a bad pattern.
		panic(err)
	}
	sort.Strings(entries)

	var b strings.Builder
	for _, name := range entries {
		data, err := fs.ReadFile(files, name)
		if err != nil {
			panic(err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String()
}
