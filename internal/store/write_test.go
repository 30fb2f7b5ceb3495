package store

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/roach88/txsched/internal/ir"
)

func TestWriteDesign_ContentAddressed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	h1, err := s.WriteDesign(ctx, testDesign())
	if err != nil {
		t.Fatalf("WriteDesign() failed: %v", err)
	}
	h2, err := s.WriteDesign(ctx, testDesign())
	if err != nil {
		t.Fatalf("second WriteDesign() failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash changed: %s != %s", h1, h2)
	}
	if h1 != ir.MustDesignHash(testDesign()) {
		t.Errorf("hash = %s, want DesignHash", h1)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM designs").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("designs count = %d, want 1", count)
	}

	got, err := s.ReadDesign(ctx, h1)
	if err != nil {
		t.Fatalf("ReadDesign() failed: %v", err)
	}
	if !reflect.DeepEqual(got, testDesign()) {
		t.Errorf("ReadDesign() = %+v, want %+v", got, testDesign())
	}
}

func TestBeginRun_WritesDesignAndRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := beginTestRun(t, s, "run-1")

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if got.Finished || got.Cycles != 0 {
		t.Errorf("new run = %+v, want unfinished with 0 cycles", got)
	}
	if got.DesignHash != run.DesignHash || got.DesignName != "pair" {
		t.Errorf("ReadRun() = %+v", got)
	}

	// Beginning again is a no-op.
	beginTestRun(t, s, "run-1")
	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRuns() returned %d runs, want 1", len(runs))
	}
}

func TestRecordCycle_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")

	recs := []ir.CycleRecord{
		{
			Cycle: 1,
			Ready: []string{"T1", "T2"},
			Fired: []string{"T1"},
			Calls: []ir.MethodCall{
				{Method: "M", Caller: "T1", Args: ir.Record{"v": ir.Int(7)}, Result: ir.Record{}},
			},
		},
		{Cycle: 2, Ready: []string{}, Fired: []string{}},
		{
			Cycle: 3,
			Ready: []string{"T2"},
			Fired: []string{"T2"},
			Calls: []ir.MethodCall{
				{Method: "M", Caller: "T2", Args: ir.Record{"v": ir.Int(1)}, Result: ir.Record{}},
			},
		},
	}
	for _, rec := range recs {
		if err := s.RecordCycle(ctx, "run-1", rec); err != nil {
			t.Fatalf("RecordCycle(%d) failed: %v", rec.Cycle, err)
		}
	}

	got, err := s.ReadCycles(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadCycles() failed: %v", err)
	}
	if !reflect.DeepEqual(got, recs) {
		t.Errorf("ReadCycles() =\n%+v\nwant\n%+v", got, recs)
	}

	digests, err := s.ReadDigests(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if digests[rec.Cycle] != ir.CycleDigest(rec) {
			t.Errorf("cycle %d digest mismatch", rec.Cycle)
		}
	}
}

func TestRecordCycle_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")

	first := ir.CycleRecord{
		Cycle: 1, Ready: []string{"T1"}, Fired: []string{"T1"},
		Calls: []ir.MethodCall{{Method: "M", Caller: "T1", Args: ir.Record{"v": ir.Int(1)}, Result: ir.Record{}}},
	}
	second := ir.CycleRecord{Cycle: 1, Ready: []string{"T2"}, Fired: []string{"T2"}}

	if err := s.RecordCycle(ctx, "run-1", first); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordCycle(ctx, "run-1", second); err != nil {
		t.Fatalf("duplicate RecordCycle() = %v, want nil", err)
	}

	got, err := s.ReadCycles(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0], first) {
		t.Errorf("ReadCycles() = %+v, want first record only", got)
	}
}

func TestRecordCycle_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	err := s.RecordCycle(context.Background(), "ghost", ir.CycleRecord{Cycle: 1})
	if err == nil {
		t.Error("RecordCycle() for unknown run should fail the foreign key")
	}
}

func TestEndRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")
	beginTestRun(t, s, "run-2")

	if err := s.EndRun(ctx, "run-1", 12); err != nil {
		t.Fatalf("EndRun() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !run.Finished || run.Cycles != 12 {
		t.Errorf("ended run = %+v", run)
	}

	unfinished, err := s.FindUnfinishedRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unfinished) != 1 || unfinished[0].ID != "run-2" {
		t.Errorf("FindUnfinishedRuns() = %+v, want run-2", unfinished)
	}

	if err := s.EndRun(ctx, "ghost", 1); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("EndRun(ghost) = %v, want sql.ErrNoRows", err)
	}
}
