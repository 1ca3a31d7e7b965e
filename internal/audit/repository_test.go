package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testRepo returns a repository backed by an in-memory database.
func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := NewSQLiteRepository(context.Background(), db)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	return repo
}

func TestCreateGeneratesIDAndTimestamp(t *testing.T) {
	repo := testRepo(t)

	ev := &LinkEvent{
		Event:  "reachable",
		Serial: "AB1-CD-EFG2345H",
	}
	if err := repo.Create(context.Background(), ev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if ev.ID == "" {
		t.Error("Create() did not generate an ID")
	}
	if ev.CreatedAt.IsZero() {
		t.Error("Create() did not set CreatedAt")
	}
}

func TestCreateAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	events := []*LinkEvent{
		{Event: "reachable", Serial: "AB1-CD-EFG2345H", CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
		{Event: "unreachable", Serial: "AB1-CD-EFG2345H", CreatedAt: time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)},
		{Event: "reachable", Serial: "XY9-ZZ-AAA0000B", CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, ev := range events {
		if err := repo.Create(ctx, ev); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 {
		t.Errorf("Total = %d, want 3", result.Total)
	}
	if len(result.Events) != 3 {
		t.Fatalf("len(Events) = %d, want 3", len(result.Events))
	}

	// Most recent first.
	if result.Events[0].Serial != "XY9-ZZ-AAA0000B" {
		t.Errorf("Events[0].Serial = %q, want XY9-ZZ-AAA0000B", result.Events[0].Serial)
	}
}

func TestListFilterByEvent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, event := range []string{"reachable", "unreachable", "reachable"} {
		if err := repo.Create(ctx, &LinkEvent{Event: event, Serial: "AB1-CD-EFG2345H"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Event: "reachable"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}
	for _, ev := range result.Events {
		if ev.Event != "reachable" {
			t.Errorf("Event = %q, want reachable", ev.Event)
		}
	}
}

func TestListFilterBySerial(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	serials := []string{"AB1-CD-EFG2345H", "XY9-ZZ-AAA0000B", "AB1-CD-EFG2345H"}
	for _, serial := range serials {
		if err := repo.Create(ctx, &LinkEvent{Event: "reachable", Serial: serial}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Serial: "AB1-CD-EFG2345H"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}
}

func TestDetailsRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	ev := &LinkEvent{
		Event:  "command_published",
		Serial: "AB1-CD-EFG2345H",
		Details: map[string]any{
			"kind": "SET-STATE",
		},
	}
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{Event: "command_published"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(result.Events))
	}

	got := result.Events[0].Details
	if got == nil || got["kind"] != "SET-STATE" {
		t.Errorf("Details = %v, want kind=SET-STATE", got)
	}
}

func TestListLimitClamping(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	result, err := repo.List(ctx, Filter{Limit: 10000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != maxListLimit {
		t.Errorf("Limit = %d, want clamped to %d", result.Limit, maxListLimit)
	}

	result, err = repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != defaultListLimit {
		t.Errorf("Limit = %d, want default %d", result.Limit, defaultListLimit)
	}
	if result.Events == nil {
		t.Error("Events = nil, want empty slice")
	}
}
