// Package testenv provides PostgreSQL for tests.
//
// Call Start from TestMain, and GetPool from each test:
//
//	var env *testenv.Env
//
//	func TestMain(m *testing.M) {
//		env = testenv.MustStart(context.Background())
//		code := m.Run()
//		env.Terminate(context.Background())
//		os.Exit(code)
//	}
//
// When the environment variable KNITDAO_TEST_DATABASE is set, it is used as the
// connection string and no container is started.
// Otherwise, when no container runtime is reachable, MustStart skips the whole
// package: it reports so and exits with 0.
package testenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	kpool "github.com/opst/knitdao/pkg/conn/db/postgres/pool"
	"github.com/opst/knitdao/pkg/db/postgres/schema"
	"github.com/opst/knitdao/pkg/utils"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	EnvDatabase = "KNITDAO_TEST_DATABASE"
	image       = "postgres:16-alpine"
)

// PoolBroaker is a interface to get a pool.
type PoolBroaker interface {
	// GetPool returns a pool.
	//
	// Tables are cleaned up before returning and after t.
	GetPool(ctx context.Context, t *testing.T) kpool.Pool
}

// Env is a PostgreSQL database with the schema applied.
type Env struct {
	pool      *pgxpool.Pool
	terminate func(context.Context) error
}

var _ PoolBroaker = &Env{}

type options struct {
	schemaRepository string
}

type Option func(*options) *options

// WithSchemaRepository sets the schema repository applied to the database.
//
// By default, "schema/postgres" in the directory having go.mod of this module.
func WithSchemaRepository(path string) Option {
	return func(o *options) *options {
		o.schemaRepository = path
		return o
	}
}

// Start starts a database (or connects to KNITDAO_TEST_DATABASE), then upgrades schema.
func Start(ctx context.Context, opts ...Option) (*Env, error) {
	godotenv.Load()

	o := &options{}
	for _, opt := range opts {
		o = opt(o)
	}
	if o.schemaRepository == "" {
		gomod, err := utils.SearchFileUpward(".", "go.mod")
		if err != nil {
			return nil, fmt.Errorf("testenv: go.mod is not found: %w", err)
		}
		o.schemaRepository = filepath.Join(filepath.Dir(gomod), "schema", "postgres")
	}

	env := &Env{}

	dsn := os.Getenv(EnvDatabase)
	if dsn == "" {
		container, err := postgres.Run(
			ctx, image,
			postgres.WithDatabase("knitdao"),
			postgres.WithUsername("test-user"),
			postgres.WithPassword("test-pass"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("testenv: error starting postgres container: %w", err)
		}
		env.terminate = container.Terminate

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			env.Terminate(ctx)
			return nil, fmt.Errorf("testenv: error getting connection string: %w", err)
		}
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		env.Terminate(ctx)
		return nil, fmt.Errorf("testenv: error connecting database: %w", err)
	}
	env.pool = pool

	if err := schema.New(kpool.Wrap(pool), o.schemaRepository, nil).Upgrade(ctx); err != nil {
		env.Terminate(ctx)
		return nil, fmt.Errorf("testenv: error upgrading schema: %w", err)
	}

	return env, nil
}

// ErrUnavailable is returned when neither KNITDAO_TEST_DATABASE nor a container runtime is available.
var ErrUnavailable = errors.New("testenv: container runtime is not available")

// Available tells whether Start can get a database.
//
// It returns nil when KNITDAO_TEST_DATABASE is set or the docker provider is healthy,
// or an error wrapping ErrUnavailable.
func Available(ctx context.Context) error {
	godotenv.Load()
	if os.Getenv(EnvDatabase) != "" {
		return nil
	}
	return checkHealth(ctx, dockerHealth)
}

func dockerHealth(ctx context.Context) error {
	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return err
	}
	defer provider.Close()
	return provider.Health(ctx)
}

// checkHealth runs health. The provider panics when docker host is not found.
func checkHealth(ctx context.Context, health func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnavailable, r)
		}
	}()
	if herr := health(ctx); herr != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, herr)
	}
	return nil
}

// MustStart is Start, panicking on error.
//
// When the database is not Available, it skips all tests in the package by exiting with 0.
func MustStart(ctx context.Context, opts ...Option) *Env {
	if err := Available(ctx); err != nil {
		skip(err)
	}
	env, err := Start(ctx, opts...)
	if err != nil {
		panic(err)
	}
	return env
}

var exit = os.Exit

func skip(reason error) {
	fmt.Fprintf(os.Stderr, "SKIP: tests need a database. set %s or start docker: %v\n", EnvDatabase, reason)
	exit(0)
}

// Terminate closes connections and stops the container, if started.
func (e *Env) Terminate(ctx context.Context) error {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.terminate != nil {
		return e.terminate(ctx)
	}
	return nil
}

// GetPool returns a pool. Tables are truncated before returning and after t.
func (e *Env) GetPool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Helper()
	t.Cleanup(func() {
		ClearTables(context.Background(), e.pool, t)
	})

	ClearTables(ctx, e.pool, t)
	return kpool.Wrap(e.pool)
}

// ClearTables truncates all tables in the public schema, except "schema_version".
func ClearTables(ctx context.Context, p *pgxpool.Pool, t *testing.T) {
	t.Helper()

	rows, err := p.Query(
		ctx,
		`select "tablename" from "pg_tables" where "schemaname" = 'public' and "tablename" <> 'schema_version'`,
	)
	if err != nil {
		t.Errorf("fail to clean-up tables.: %v", err)
		return
	}
	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			t.Errorf("fail to clean-up tables.: %v", err)
			return
		}
		tables = append(tables, fmt.Sprintf(`"%s"`, name))
	}
	rows.Close()

	if len(tables) == 0 {
		return
	}
	if _, err := p.Exec(
		ctx,
		fmt.Sprintf(`truncate %s RESTART IDENTITY cascade`, strings.Join(tables, ", ")),
	); err != nil {
		t.Errorf("fail to clean-up tables.: %v", err)
	}
}
