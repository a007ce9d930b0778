package dbcontext

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

type customer struct {
	ID        int64  `db:"id"`
	Name      string `db:"full_name"`
	Email     string
	Tier      int32     `db:"tier"`
	CreatedAt time.Time `db:"created_at"`
	Cache     string    `db:"-"`
	internal  string
}

func TestReflectionMapper_ToRow(t *testing.T) {
	m := NewReflectionMapper[customer, int64]("ID")
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &customer{ID: 4, Name: "Ada", Email: "ada@example.com", Tier: 2, CreatedAt: created, Cache: "x", internal: "y"}

	columns, values, err := m.ToRow(c)
	if err != nil {
		t.Fatalf("ToRow() error = %v", err)
	}

	wantColumns := []string{"id", "full_name", "email", "tier", "created_at"}
	wantValues := []any{int64(4), "Ada", "ada@example.com", int32(2), created}
	if !reflect.DeepEqual(columns, wantColumns) {
		t.Fatalf("columns = %v, want %v", columns, wantColumns)
	}
	if !reflect.DeepEqual(values, wantValues) {
		t.Fatalf("values = %v, want %v", values, wantValues)
	}
}

func TestReflectionMapper_FromRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "full_name", "email", "tier", "created_at", "extra"}).
			AddRow(int64(4), []byte("Ada"), nil, int64(2), created, "ignored"),
	)

	rows, err := db.QueryContext(context.Background(), "SELECT * FROM customers")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected a row")
	}

	m := NewReflectionMapper[customer, int64]("ID")
	got, err := m.FromRow(rows)
	if err != nil {
		t.Fatalf("FromRow() error = %v", err)
	}
	want := &customer{ID: 4, Name: "Ada", Tier: 2, CreatedAt: created}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FromRow() = %+v, want %+v", got, want)
	}
}

func TestReflectionMapper_ID(t *testing.T) {
	m := NewReflectionMapper[customer, int64]("ID")
	c := &customer{}
	m.SetID(c, 9)
	if got := m.GetID(c); got != 9 {
		t.Fatalf("GetID() = %d, want 9", got)
	}

	missing := NewReflectionMapper[customer, int64]("Missing")
	if got := missing.GetID(c); got != 0 {
		t.Fatalf("GetID() on missing field = %d, want 0", got)
	}
}

func TestConvertID(t *testing.T) {
	if id, err := convertID[int64](int64(5)); err != nil || id != 5 {
		t.Fatalf("int64: %d, %v", id, err)
	}
	if id, err := convertID[int32](int64(5)); err != nil || id != 5 {
		t.Fatalf("int64 to int32: %d, %v", id, err)
	}
	if id, err := convertID[string]([]byte("abc")); err != nil || id != "abc" {
		t.Fatalf("bytes to string: %q, %v", id, err)
	}
	if _, err := convertID[string](int64(65)); err == nil {
		t.Fatal("expected error converting int64 to string")
	}
	if _, err := convertID[int64](nil); err == nil {
		t.Fatal("expected error for nil key")
	}
}

func TestReflectionMapper_CopyMapped(t *testing.T) {
	m := NewReflectionMapper[customer, int64]("ID")
	dst := &customer{ID: 4, Name: "old", Cache: "kept", internal: "kept"}
	src := &customer{ID: 4, Name: "new", Email: "ada@example.com", Tier: 3, Cache: "fresh", internal: "fresh"}

	m.CopyMapped(dst, src)

	if dst.Name != "new" || dst.Email != "ada@example.com" || dst.Tier != 3 {
		t.Fatalf("mapped fields not copied: %+v", dst)
	}
	if dst.Cache != "kept" || dst.internal != "kept" {
		t.Fatalf("unmapped fields overwritten: %+v", dst)
	}
}
