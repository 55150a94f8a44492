// Package schema applies versioned SQL files in a repository directory to PostgreSQL.
//
// A repository looks like
//
//	schema/postgres/
//	├── 1/
//	│   └── invoice.sql
//	└── 2/
//	    └── tag.sql
//
// Each of numbered directories is a version. SQL files in it are executed in lexical order.
// The version applied last is recorded in the table "schema_version".
package schema

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/labstack/gommon/log"
	kpool "github.com/opst/knitdao/pkg/conn/db/postgres/pool"
	xe "github.com/opst/knitdao/pkg/errors"
)

// Schema manages the version of database schema.
type Schema interface {
	// Version returns the version applied in the database. 0 means that no versions are applied.
	Version(ctx context.Context) (int, error)

	// Upgrade applies versions newer than the database has, in one transaction.
	Upgrade(ctx context.Context) error

	// Context returns a context which is canceled when the database gets older than the repository.
	Context(ctx context.Context) (context.Context, context.CancelFunc)
}

type pgSchema struct {
	pool             kpool.Pool
	schemaRepository string
	logger           *log.Logger
}

var _ Schema = &pgSchema{}

// New creates a new Schema.
//
// # Args
//
// - pool: connection to the database.
//
// - schemaRepository: The path to the schema repository directory.
//
// - logger: logger for upgrading progress. If nil, a default logger is used.
func New(pool kpool.Pool, schemaRepository string, logger *log.Logger) Schema {
	if logger == nil {
		logger = log.New("knitdao/schema")
	}
	return &pgSchema{
		pool:             pool,
		schemaRepository: filepath.Clean(schemaRepository),
		logger:           logger,
	}
}

type version struct {
	Version int
	Root    string
}

func (v version) Apply(ctx context.Context, conn kpool.Queryer) error {
	return filepath.WalkDir(v.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}

		query, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if _, err := conn.Exec(ctx, string(query)); err != nil {
			return xe.WrapWithNote(path, err)
		}
		return nil
	})
}

func (s *pgSchema) Version(ctx context.Context) (int, error) {
	return currentVersion(ctx, s.pool)
}

func currentVersion(ctx context.Context, conn kpool.Queryer) (int, error) {
	var version *int
	if err := conn.QueryRow(
		ctx, `SELECT max("version") FROM "schema_version"`,
	).Scan(&version); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
			if pgerr.Code == pgerrcode.UndefinedTable {
				return 0, nil
			}
		}
		return -1, xe.Wrap(err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

func (s *pgSchema) Upgrade(ctx context.Context) error {
	schemaVersions, err := s.versions()
	if err != nil {
		return xe.Wrap(err)
	}

	current, err := s.Version(ctx)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx, `CREATE TABLE IF NOT EXISTS "schema_version" ("version" integer NOT NULL)`,
	); err != nil {
		return xe.Wrap(err)
	}

	applied := current
	for _, v := range schemaVersions {
		if v.Version <= current {
			continue
		}
		s.logger.Infof("applying schema version %d (%s)", v.Version, v.Root)
		if err := v.Apply(ctx, tx); err != nil {
			return err
		}
		applied = v.Version
	}

	if applied == current {
		s.logger.Infof("schema is up to date: version %d", current)
		return nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM "schema_version"`); err != nil {
		return xe.Wrap(err)
	}
	if _, err := tx.Exec(
		ctx, `INSERT INTO "schema_version" ("version") VALUES ($1)`, applied,
	); err != nil {
		return xe.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return xe.Wrap(err)
	}
	s.logger.Infof("schema is upgraded: version %d -> %d", current, applied)
	return nil
}

func (s *pgSchema) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, can := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		can(err)
		return cctx, func() {}
	}
	if err := w.Add(s.schemaRepository); err != nil {
		w.Close()
		can(err)
		return cctx, func() {}
	}

	checkVersion := func() {
		vs, err := s.versions()
		if err != nil {
			can(fmt.Errorf("failed to read schema repository: %w", err))
			return
		}

		current, err := s.Version(cctx)
		if err != nil {
			can(fmt.Errorf("failed to get current schema version: %w", err))
			return
		}

		if latest := latestOf(vs); current < latest {
			can(fmt.Errorf(
				"schema is outdated: %d (in db) < %d (in repository)",
				current, latest,
			))
		}
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				if s.schemaRepository != filepath.Dir(ev.Name) {
					continue
				}

				checkVersion()
			}
		}
	}()

	checkVersion()
	return cctx, func() { can(nil) }
}

func latestOf(vs []version) int {
	if len(vs) == 0 {
		return 0
	}
	return vs[len(vs)-1].Version
}

// versions lookup the schema from the schema repository.
//
// # Returns
//
// - []version: The list of schema versions, sorted by version number.
//
// - error: The error if any.
func (s *pgSchema) versions() ([]version, error) {
	dir, err := os.ReadDir(s.schemaRepository)
	if err != nil {
		return nil, err
	}

	schemaVersions := make([]version, 0, len(dir))
	for _, entry := range dir {
		if !entry.IsDir() {
			continue
		}

		v, err := strconv.Atoi(entry.Name())
		if err != nil || v <= 0 {
			continue
		}

		schemaVersions = append(schemaVersions, version{
			Version: v,
			Root:    filepath.Join(s.schemaRepository, entry.Name()),
		})
	}
	slices.SortFunc(
		schemaVersions,
		func(i, j version) int { return cmp.Compare(i.Version, j.Version) },
	)

	return schemaVersions, nil
}
