package trace

import (
	"context"
	"fmt"

	"github.com/avencourt/fixpoint"
)

// Runs returns the distinct run tokens present in the journal, most recent
// first (tokens are UUIDv7, so lexical order is creation order).
func (j *Journal) Runs(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT DISTINCT run FROM updates
		ORDER BY run COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	if runs == nil {
		runs = []string{}
	}
	return runs, nil
}

// Updates returns every slot transition of a run in deterministic order:
// ORDER BY seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the run is unknown.
func (j *Journal) Updates(ctx context.Context, run string) ([]fixpoint.UpdateRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run, seq, entity, kind, bound, final, origin
		FROM updates
		WHERE run = ?
		ORDER BY seq ASC, id ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	var updates []fixpoint.UpdateRecord
	for rows.Next() {
		var u fixpoint.UpdateRecord
		var final int
		if err := rows.Scan(&u.Run, &u.Seq, &u.Entity, &u.Kind, &u.Bound, &final, &u.Origin); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		u.Final = final != 0
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	if updates == nil {
		updates = []fixpoint.UpdateRecord{}
	}
	return updates, nil
}

// Edges returns every observed dependency of a run in deterministic order:
// ORDER BY seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the run is unknown.
func (j *Journal) Edges(ctx context.Context, run string) ([]fixpoint.EdgeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run, seq, depender_entity, depender_kind, dependee_entity, dependee_kind
		FROM edges
		WHERE run = ?
		ORDER BY seq ASC, id ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []fixpoint.EdgeRecord
	for rows.Next() {
		var e fixpoint.EdgeRecord
		if err := rows.Scan(&e.Run, &e.Seq, &e.DependerEntity, &e.DependerKind,
			&e.DependeeEntity, &e.DependeeKind); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	if edges == nil {
		edges = []fixpoint.EdgeRecord{}
	}
	return edges, nil
}
