package serverdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func openTest(t *testing.T) *ServerDB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "data", "kv.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetMissing(t *testing.T) {
	db := openTest(t)
	if _, err := db.Get(context.Background(), "qlog", "reports_ABC"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}
}

func TestPutGetVersioning(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	e, err := db.Put(ctx, "qlog", "reports_ABC", []byte(`[{"id":"1"}]`), "dev-a")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e.Version != 1 {
		t.Errorf("first version = %d, want 1", e.Version)
	}

	e, err = db.Put(ctx, "qlog", "reports_ABC", []byte(`[]`), "dev-b")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e.Version != 2 {
		t.Errorf("second version = %d, want 2", e.Version)
	}

	got, err := db.Get(ctx, "qlog", "reports_ABC")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `[]` || got.Version != 2 || got.DeviceID != "dev-b" {
		t.Errorf("Get = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	db.Put(ctx, "a", "k", []byte(`"a"`), "")
	db.Put(ctx, "b", "k", []byte(`"b"`), "")

	got, err := db.Get(ctx, "a", "k")
	if err != nil || string(got.Value) != `"a"` {
		t.Fatalf("bucket a: %v, %v", got, err)
	}
	n, err := db.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	db, err := Open(DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Put(context.Background(), "qlog", "k", []byte(`[1]`), "")
	db.Close()

	db, err = Open(DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.Get(context.Background(), "qlog", "k")
	if err != nil || string(got.Value) != `[1]` {
		t.Fatalf("after reopen: %v, %v", got, err)
	}
}

func TestConcurrentPuts(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.Put(ctx, "qlog", "hot", []byte(`[]`), ""); err != nil {
				t.Errorf("Put: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := db.Get(ctx, "qlog", "hot")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 20 {
		t.Errorf("version = %d, want 20", got.Version)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &ServerDB{driver: DriverPostgres}
	got := pg.rebind("SELECT * FROM kv WHERE bucket = ? AND key = ?")
	if got != "SELECT * FROM kv WHERE bucket = $1 AND key = $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &ServerDB{driver: DriverSQLite}
	if q := "a = ?"; lite.rebind(q) != q {
		t.Error("sqlite query should be unchanged")
	}
}

func TestCgoDriver(t *testing.T) {
	db, err := Open(DriverSQLite3, filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Skipf("sqlite3 driver unavailable: %v", err)
	}
	defer db.Close()
	if _, err := db.Put(context.Background(), "qlog", "k", []byte(`[]`), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("QLOG_KV_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("QLOG_KV_TEST_POSTGRES not set")
	}
	db, err := Open(DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	key := "test_" + t.Name()
	first, err := db.Put(ctx, "qlog", key, []byte(`[]`), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := db.Put(ctx, "qlog", key, []byte(`[{"id":"1"}]`), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if second.Version != first.Version+1 {
		t.Errorf("versions %d -> %d", first.Version, second.Version)
	}
}
