package store

import (
	"context"
	"fmt"

	"github.com/roach88/txsched/internal/ir"
)

// ReadDesign returns the design stored under hash.
// Returns sql.ErrNoRows (wrapped) if no such design exists.
func (s *Store) ReadDesign(ctx context.Context, hash string) (ir.Design, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM designs WHERE hash = ?`, hash).Scan(&body)
	if err != nil {
		return ir.Design{}, fmt.Errorf("read design %s: %w", hash, err)
	}
	return unmarshalDesign(body)
}

// ReadRun returns a single run by ID.
// Returns sql.ErrNoRows (wrapped) if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, design_hash, design_name, scheduler_version, cycles, finished
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return ir.Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run, ordered by ID.
// UUIDv7 run IDs sort by creation time, so this is oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	return s.queryRuns(ctx, `
		SELECT id, design_hash, design_name, scheduler_version, cycles, finished
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
}

// FindUnfinishedRuns returns runs that began but never ended, typically
// because the process stopped mid-simulation.
func (s *Store) FindUnfinishedRuns(ctx context.Context) ([]ir.Run, error) {
	return s.queryRuns(ctx, `
		SELECT id, design_hash, design_name, scheduler_version, cycles, finished
		FROM runs
		WHERE finished = 0
		ORDER BY id COLLATE BINARY ASC
	`)
}

func (s *Store) queryRuns(ctx context.Context, query string) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (ir.Run, error) {
	var run ir.Run
	var finished int
	if err := row.Scan(&run.ID, &run.DesignHash, &run.DesignName, &run.SchedulerVersion, &run.Cycles, &finished); err != nil {
		return ir.Run{}, err
	}
	run.Finished = finished != 0
	return run, nil
}

// ReadCycles returns every recorded cycle of a run in cycle order, each
// with its method calls in call order. Returns an empty slice (not nil)
// for a run with no cycles.
func (s *Store) ReadCycles(ctx context.Context, runID string) ([]ir.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, ready, fired
		FROM cycles
		WHERE run_id = ?
		ORDER BY cycle ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read cycles: %w", err)
	}
	defer rows.Close()

	cycles := []ir.CycleRecord{}
	index := make(map[int64]int)
	for rows.Next() {
		var rec ir.CycleRecord
		var ready, fired string
		if err := rows.Scan(&rec.Cycle, &ready, &fired); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if rec.Ready, err = unmarshalNames(ready); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", rec.Cycle, err)
		}
		if rec.Fired, err = unmarshalNames(fired); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", rec.Cycle, err)
		}
		index[rec.Cycle] = len(cycles)
		cycles = append(cycles, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}

	calls, err := s.readCalls(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, c := range calls {
		i := index[c.cycle]
		cycles[i].Calls = append(cycles[i].Calls, c.call)
	}
	return cycles, nil
}

type cycleCall struct {
	cycle int64
	call  ir.MethodCall
}

func (s *Store) readCalls(ctx context.Context, runID string) ([]cycleCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, method, caller, args, result
		FROM method_calls
		WHERE run_id = ?
		ORDER BY cycle ASC, seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read calls: %w", err)
	}
	defer rows.Close()

	var calls []cycleCall
	for rows.Next() {
		var c cycleCall
		var args, result string
		if err := rows.Scan(&c.cycle, &c.call.Method, &c.call.Caller, &args, &result); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if c.call.Args, err = unmarshalRecord(args); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", c.cycle, err)
		}
		if c.call.Result, err = unmarshalRecord(result); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", c.cycle, err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// ReadDigests returns the stored digest of every cycle of a run, keyed by
// cycle number.
func (s *Store) ReadDigests(ctx context.Context, runID string) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, digest FROM cycles WHERE run_id = ? ORDER BY cycle ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read digests: %w", err)
	}
	defer rows.Close()

	digests := make(map[int64]string)
	for rows.Next() {
		var cycle int64
		var digest string
		if err := rows.Scan(&cycle, &digest); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		digests[cycle] = digest
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digests: %w", err)
	}
	return digests, nil
}

// Trace is a run together with its design and every recorded cycle.
type Trace struct {
	Run    ir.Run           `json:"run"`
	Design ir.Design        `json:"design"`
	Cycles []ir.CycleRecord `json:"cycles"`
}

// ReadTrace loads everything needed to display or replay a run.
func (s *Store) ReadTrace(ctx context.Context, runID string) (Trace, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return Trace{}, err
	}
	design, err := s.ReadDesign(ctx, run.DesignHash)
	if err != nil {
		return Trace{}, err
	}
	cycles, err := s.ReadCycles(ctx, runID)
	if err != nil {
		return Trace{}, err
	}
	return Trace{Run: run, Design: design, Cycles: cycles}, nil
}
