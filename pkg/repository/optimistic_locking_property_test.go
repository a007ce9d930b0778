package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	_ "github.com/lib/pq"

	"github.com/nimburion/dataaccess/pkg/dbcontext"
	"github.com/nimburion/dataaccess/pkg/observability/logger"
	"github.com/nimburion/dataaccess/pkg/testutil"
	"github.com/nimburion/dataaccess/pkg/uow"
)

// VersionedEntity is a test entity with version field for optimistic locking
type VersionedEntity struct {
	ID      int64  `db:"id"`
	Name    string `db:"name"`
	Version int64  `db:"version"`
}

func (e *VersionedEntity) GetVersion() int64 {
	return e.Version
}

func (e *VersionedEntity) SetVersion(version int64) {
	e.Version = version
}

// TestProperty_OptimisticLocking checks against a real PostgreSQL that a committed update bumps
// the version and that a unit of work holding a stale copy fails to commit.
func TestProperty_OptimisticLocking(t *testing.T) {
	dbURL := testutil.DatabaseURL(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Skipf("cannot connect to test database: %v", err)
	}

	setupOptimisticLockingTestTable(t, db)
	defer cleanupOptimisticLockingTestTable(t, db)

	newUnit := func() (uow.UnitOfWork, *RepositoryWrite[VersionedEntity, int64], *RepositoryRead[VersionedEntity, int64]) {
		dbc := dbcontext.New(db, dbcontext.Postgres)
		dbcontext.Register(dbc, "optimistic_locking_test", "id", dbcontext.NewReflectionMapper[VersionedEntity, int64]("ID"))
		unit := uow.New(dbc, logger.Nop())
		writer, _ := NewRepositoryWrite[VersionedEntity, int64](unit)
		reader, _ := NewRepositoryRead[VersionedEntity, int64](dbc)
		return unit, writer, reader
	}

	seed := func(ctx context.Context, id int64, name string) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO optimistic_locking_test (id, name, version) VALUES ($1, $2, 0) ON CONFLICT (id) DO UPDATE SET name = $2, version = 0",
			id, name)
		return err
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("sequential commits increment version", prop.ForAll(
		func(id int64, updates []string) bool {
			ctx := context.Background()
			if err := seed(ctx, id, "initial"); err != nil {
				t.Logf("failed to seed entity: %v", err)
				return false
			}

			for i, name := range updates {
				_, writer, reader := newUnit()
				entity, err := reader.Find(ctx, id)
				if err != nil {
					t.Logf("failed to find entity at iteration %d: %v", i, err)
					return false
				}
				if entity.Version != int64(i) {
					t.Logf("expected version %d at iteration %d, got %d", i, i, entity.Version)
					return false
				}
				entity.Name = name
				if err := writer.Update(entity); err != nil || !writer.Commit(ctx) {
					t.Logf("update failed at iteration %d", i)
					return false
				}
				if entity.Version != int64(i+1) {
					t.Logf("expected version %d after commit, got %d", i+1, entity.Version)
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 10000),
		gen.SliceOfN(5, gen.AlphaString()),
	))

	properties.Property("stale unit of work fails with a lock error", prop.ForAll(
		func(id int64, first, second string) bool {
			ctx := context.Background()
			if err := seed(ctx, id, "initial"); err != nil {
				t.Logf("failed to seed entity: %v", err)
				return false
			}

			_, writer1, reader1 := newUnit()
			unit2, _, reader2 := newUnit()
			copy1, err1 := reader1.Find(ctx, id)
			copy2, err2 := reader2.Find(ctx, id)
			if err := errors.Join(err1, err2); err != nil {
				t.Logf("failed to load copies: %v", err)
				return false
			}

			copy1.Name = first + "-1"
			if !writer1.Commit(ctx) {
				t.Logf("first commit failed")
				return false
			}

			copy2.Name = second + "-2"
			err := unit2.SaveChanges(ctx)
			var lockErr *dbcontext.OptimisticLockError
			if !errors.As(err, &lockErr) {
				t.Logf("expected OptimisticLockError, got: %v", err)
				return false
			}
			if lockErr.Expected != 0 || lockErr.EntityID != fmt.Sprint(id) {
				t.Logf("unexpected lock error details: %+v", lockErr)
				return false
			}

			var name string
			var version int64
			err = db.QueryRowContext(ctx, "SELECT name, version FROM optimistic_locking_test WHERE id = $1", id).Scan(&name, &version)
			return err == nil && name == first+"-1" && version == 1
		},
		gen.Int64Range(1, 10000),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// setupOptimisticLockingTestTable creates the test table for optimistic locking tests
func setupOptimisticLockingTestTable(t *testing.T, db *sql.DB) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS optimistic_locking_test (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			version BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		t.Fatalf("failed to create test table: %v", err)
	}
}

// cleanupOptimisticLockingTestTable drops the test table
func cleanupOptimisticLockingTestTable(t *testing.T, db *sql.DB) {
	_, err := db.Exec("DROP TABLE IF EXISTS optimistic_locking_test")
	if err != nil {
		t.Logf("failed to drop test table: %v", err)
	}
}
