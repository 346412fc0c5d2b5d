package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestPostgresContract(t *testing.T) {
	url := os.Getenv("TOTEMIC_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TOTEMIC_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() {
		pg.pool.Exec(ctx, "DELETE FROM totemic_documents WHERE id LIKE 'doc-%'")
		pg.Close()
	})

	testStoreContract(t, pg)
}

func TestRedisContract(t *testing.T) {
	addr := os.Getenv("TOTEMIC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TOTEMIC_TEST_REDIS_ADDR not set")
	}

	// A fresh prefix per run keeps runs independent without flushing.
	r, err := OpenRedis(context.Background(), addr, "totemic-test-"+uuid.NewString())
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	testStoreContract(t, r)
}
