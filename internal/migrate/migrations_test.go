package migrate_test

import (
	"context"
	"testing"

	"campushustle/internal/capability"
	"campushustle/internal/db"
	"campushustle/internal/migrate"
)

func TestMigrateStepwiseExposesCapabilities(t *testing.T) {
	ctx := context.Background()
	steps := []struct {
		target int
		want   capability.Set
	}{
		{migrate.VersionInit, capability.Set{}},
		{migrate.VersionBids, capability.Set{Bids: true}},
		{migrate.VersionAssignment, capability.Full},
	}
	for _, step := range steps {
		conn, err := db.Open(db.Config{Workspace: t.TempDir()})
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		if err := migrate.MigrateTo(conn, step.target); err != nil {
			t.Fatalf("migrate to %d: %v", step.target, err)
		}
		got, err := capability.NewProbe(conn).Load(ctx)
		if err != nil {
			t.Fatalf("probe at %d: %v", step.target, err)
		}
		if got != step.want {
			t.Fatalf("version %d: expected %+v, got %+v", step.target, step.want, got)
		}
		conn.Close()
	}
}

func TestMigrateIsIdempotentAndResumable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.MigrateTo(conn, migrate.VersionBids); err != nil {
		t.Fatalf("migrate partial: %v", err)
	}
	if v, _ := migrate.Current(conn); v != migrate.VersionBids {
		t.Fatalf("expected version %d, got %d", migrate.VersionBids, v)
	}
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if v, _ := migrate.Current(conn); v != latest || latest != migrate.VersionAssignment {
		t.Fatalf("expected version %d, got %d", latest, v)
	}
}

func TestProbeCachesFirstAnswer(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.MigrateTo(conn, migrate.VersionInit); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	probe := capability.NewProbe(conn)
	if got, _ := probe.Load(ctx); got.Bids {
		t.Fatalf("bids should be missing, got %+v", got)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if got, _ := probe.Load(ctx); got.Bids {
		t.Fatalf("probe should keep its first answer, got %+v", got)
	}
	if got, _ := capability.NewProbe(conn).Load(ctx); got != capability.Full {
		t.Fatalf("fresh probe should see full schema, got %+v", got)
	}
}
