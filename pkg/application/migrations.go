package application

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationManager collects the schema files each module embeds and applies
// them in registration order. Schema files are written to be idempotent
// (CREATE TABLE IF NOT EXISTS ...), so Apply is safe to run at every startup.
type MigrationManager interface {
	RegisterSchema(fsys *embed.FS)
	Apply(ctx context.Context) error
}

func NewMigrationManager(pool *pgxpool.Pool) MigrationManager {
	return &migrationManager{pool: pool}
}

type migrationManager struct {
	pool    *pgxpool.Pool
	schemas []*embed.FS
}

func (m *migrationManager) RegisterSchema(fsys *embed.FS) {
	m.schemas = append(m.schemas, fsys)
}

func (m *migrationManager) Apply(ctx context.Context) error {
	for _, fsys := range m.schemas {
		files, err := listSQLFiles(fsys)
		if err != nil {
			return err
		}
		for _, file := range files {
			content, err := fsys.ReadFile(file)
			if err != nil {
				return errors.Wrapf(err, "failed to read schema file %s", file)
			}
			if _, err := m.pool.Exec(ctx, string(content)); err != nil {
				return errors.Wrapf(err, "failed to apply schema file %s", file)
			}
		}
	}
	return nil
}

func listSQLFiles(fsys *embed.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
