package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/txsched/internal/ir"
)

// WriteDesign stores a compiled design under its content hash.
// Uses ON CONFLICT(hash) DO NOTHING: the same design is stored once no
// matter how many runs reference it.
func (s *Store) WriteDesign(ctx context.Context, d ir.Design) (string, error) {
	hash, err := ir.DesignHash(d)
	if err != nil {
		return "", fmt.Errorf("write design: %w", err)
	}
	if err := writeDesign(ctx, s.db, hash, d); err != nil {
		return "", err
	}
	return hash, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeDesign(ctx context.Context, db execer, hash string, d ir.Design) error {
	body, err := marshalDesign(d)
	if err != nil {
		return fmt.Errorf("write design: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO designs (hash, name, ir_version, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, d.Name, ir.IRVersion, body)
	if err != nil {
		return fmt.Errorf("write design: %w", err)
	}
	return nil
}

// BeginRun records the start of a run together with its design.
// Both rows are written in one transaction so a run never references a
// missing design. Re-beginning an existing run is a no-op.
func (s *Store) BeginRun(ctx context.Context, run ir.Run, d ir.Design) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	hash := run.DesignHash
	if hash == "" {
		if hash, err = ir.DesignHash(d); err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
	}
	if err := writeDesign(ctx, tx, hash, d); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, design_hash, design_name, scheduler_version, cycles, finished)
		VALUES (?, ?, ?, ?, 0, 0)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, hash, run.DesignName, run.SchedulerVersion)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordCycle appends one cycle and its method calls to a run.
// The cycle row and its calls are written atomically. Uses ON CONFLICT DO
// NOTHING: recording the same cycle twice keeps the first record.
func (s *Store) RecordCycle(ctx context.Context, runID string, rec ir.CycleRecord) error {
	ready, err := marshalNames(rec.Ready)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	fired, err := marshalNames(rec.Fired)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (run_id, cycle, ready, fired, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cycle) DO NOTHING
	`, runID, rec.Cycle, ready, fired, ir.CycleDigest(rec))
	if err != nil {
		return fmt.Errorf("record cycle %d: %w", rec.Cycle, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for seq, call := range rec.Calls {
		args, err := marshalRecord(call.Args)
		if err != nil {
			return fmt.Errorf("record cycle %d: %w", rec.Cycle, err)
		}
		result, err := marshalRecord(call.Result)
		if err != nil {
			return fmt.Errorf("record cycle %d: %w", rec.Cycle, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO method_calls (run_id, cycle, seq, method, caller, args, result)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runID, rec.Cycle, seq, call.Method, call.Caller, args, result)
		if err != nil {
			return fmt.Errorf("record cycle %d: %w", rec.Cycle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record cycle %d: %w", rec.Cycle, err)
	}
	return nil
}

// EndRun marks a run finished with its final cycle count.
func (s *Store) EndRun(ctx context.Context, runID string, cycles int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET cycles = ?, finished = 1 WHERE id = ?
	`, cycles, runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}
