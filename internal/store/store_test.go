package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"

	"github.com/justestif/lastfm-recommender/internal/db"
)

// testStore runs the behavior every backend must share.
func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if ok, err := s.Exists(ctx, "missing"); err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v, want false, nil", ok, err)
	}

	if err := s.Put(ctx, "k1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, []byte(`{"a":1}`)) {
		t.Errorf("Get() = %s, want {\"a\":1}", got)
	}
	if ok, err := s.Exists(ctx, "k1"); err != nil || !ok {
		t.Errorf("Exists(k1) = %v, %v, want true, nil", ok, err)
	}

	// Overwrite
	if err := s.Put(ctx, "k1", []byte(`[]`)); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	got, _ = s.Get(ctx, "k1")
	if string(got) != `[]` {
		t.Errorf("Get() after overwrite = %s, want []", got)
	}

	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Put(%s) error = %v", k, err)
		}
	}
	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if ok, _ := s.Exists(ctx, k); ok {
			t.Errorf("key %s survived Purge()", k)
		}
	}
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value := []byte("abc")
	m.Put(ctx, "k", value)
	value[0] = 'x'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated through caller slice: %s", got)
	}
}

func TestFile(t *testing.T) {
	s, err := NewFile(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	testStore(t, s)
}

func TestFile_KeyEscaping(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	if err := s.Put(ctx, "../escape", []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); err == nil {
		t.Error("key with path separator escaped the store directory")
	}
	got, err := s.Get(ctx, "../escape")
	if err != nil || string(got) != "x" {
		t.Errorf("Get() = %q, %v, want x, nil", got, err)
	}
}

func TestFile_PurgeKeepsForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFile(dir)

	foreign := filepath.Join(dir, "debug.log")
	if err := os.WriteFile(foreign, []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}
	s.Put(ctx, "k", []byte("v"))

	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("Purge() removed a file it does not own: %v", err)
	}
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedis(t *testing.T) {
	testStore(t, NewRedis(newRedisClient(t), "cache:"))
}

func TestRedis_PurgeIsNamespaced(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)

	cache := NewRedis(client, "cache:")
	exclusions := NewRedis(client, "exclusions:")

	for i := 0; i < 250; i++ {
		cache.Put(ctx, string(rune('a'+i%26))+string(rune('0'+i/26)), []byte("v"))
	}
	exclusions.Put(ctx, "excludelist", []byte(`["Nickelback"]`))

	if err := cache.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}

	n, err := client.DBSize(ctx).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DBSize() after purge = %d, want 1", n)
	}
	if ok, _ := exclusions.Exists(ctx, "excludelist"); !ok {
		t.Error("purging cache namespace removed exclusion list")
	}
}

func newBadgerDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadger(t *testing.T) {
	testStore(t, NewBadger(newBadgerDB(t), "cache:"))
}

func TestBadger_PurgeIsNamespaced(t *testing.T) {
	ctx := context.Background()
	db := newBadgerDB(t)

	cache := NewBadger(db, "cache:")
	exclusions := NewBadger(db, "exclusions:")

	cache.Put(ctx, "k", []byte("v"))
	exclusions.Put(ctx, "excludelist", []byte(`[]`))

	if err := cache.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if ok, _ := exclusions.Exists(ctx, "excludelist"); !ok {
		t.Error("purging cache namespace removed exclusion list")
	}
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("disk full")
	err := &PersistenceError{Op: "put", Key: "excludelist", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("PersistenceError does not unwrap to its cause")
	}
	want := `persistence put "excludelist": disk full`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// expectConformance scripts the queries testStore issues against one
// namespace, in order.
func expectConformance(mock pgxmock.PgxPoolIface, ns string) {
	getMissing := func(key string) {
		mock.ExpectQuery("SELECT value").WithArgs(ns, key).WillReturnError(pgx.ErrNoRows)
	}
	get := func(key, value string) {
		mock.ExpectQuery("SELECT value").WithArgs(ns, key).
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(value)))
	}
	exists := func(key string, ok bool) {
		mock.ExpectQuery("SELECT EXISTS").WithArgs(ns, key).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(ok))
	}
	put := func(key, value string) {
		mock.ExpectExec("INSERT INTO kv_entries").WithArgs(ns, key, []byte(value)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	del := func(key string, n int64) {
		mock.ExpectExec("DELETE FROM kv_entries").WithArgs(ns, key).
			WillReturnResult(pgxmock.NewResult("DELETE", n))
	}

	getMissing("missing")
	exists("missing", false)
	put("k1", `{"a":1}`)
	get("k1", `{"a":1}`)
	exists("k1", true)
	put("k1", `[]`)
	get("k1", `[]`)
	del("k1", 1)
	getMissing("k1")
	del("k1", 0)
	for _, k := range []string{"a", "b", "c"} {
		put(k, k)
	}
	mock.ExpectExec("DELETE FROM kv_entries").WithArgs(ns).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	for _, k := range []string{"a", "b", "c"} {
		exists(k, false)
	}
}

func TestPostgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	expectConformance(mock, "cache")
	testStore(t, NewPostgres(db.NewKVRepository(mock), "cache"))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_GetError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	mock.ExpectQuery("SELECT value").WithArgs("cache", "k").
		WillReturnError(errors.New("connection reset"))

	_, err = NewPostgres(db.NewKVRepository(mock), "cache").Get(context.Background(), "k")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want a non-ErrNotFound failure", err)
	}
}
