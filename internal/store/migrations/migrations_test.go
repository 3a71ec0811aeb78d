package migrations

import (
	"io"
	"strings"
	"testing"
)

func TestEmbeddedSourceStartsAtFirstMigration(test *testing.T) {
	test.Parallel()
	src, err := Source()
	if err != nil {
		test.Fatalf("source failed: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil || first != 1 {
		test.Fatalf("expected first version 1, got %d %v", first, err)
	}
	reader, _, err := src.ReadUp(first)
	if err != nil {
		test.Fatalf("read up failed: %v", err)
	}
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		test.Fatalf("read failed: %v", err)
	}
	for _, table := range []string{"accounts", "offers", "escrow", "transactions", "admin_prices", "daily_rewards"} {
		if !strings.Contains(string(body), "create table if not exists "+table) {
			test.Fatalf("migration does not create %s", table)
		}
	}
	if !strings.Contains(string(body), "idx_offers_location_key") {
		test.Fatalf("location uniqueness index missing")
	}
}

func TestDownRejectsNonPositiveSteps(test *testing.T) {
	test.Parallel()
	if _, err := Down("postgres://unused", 0); err == nil {
		test.Fatalf("expected error for zero steps")
	}
}
