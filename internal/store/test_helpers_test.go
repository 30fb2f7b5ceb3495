package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/txsched/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testDesign is a two-transaction design sharing one method.
func testDesign() ir.Design {
	return ir.Design{
		Name: "pair",
		Methods: []ir.MethodDecl{
			{Name: "M", Input: []ir.Field{{Name: "v", Type: "int"}}},
		},
		Transactions: []ir.TransactionDecl{
			{Name: "T1", Calls: []string{"M"}},
			{Name: "T2", Calls: []string{"M"}},
		},
		Relations: []ir.RelationDecl{},
	}
}

// beginTestRun starts run id of testDesign and returns the run.
func beginTestRun(t *testing.T, s *Store, id string) ir.Run {
	t.Helper()
	d := testDesign()
	run := ir.Run{
		ID:               id,
		DesignName:       d.Name,
		DesignHash:       ir.MustDesignHash(d),
		SchedulerVersion: ir.SchedulerVersion,
	}
	if err := s.BeginRun(context.Background(), run, d); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	return run
}
