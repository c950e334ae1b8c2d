package trace

import (
	"fmt"

	"github.com/avencourt/fixpoint"
)

// Journal implements fixpoint.Recorder.
var _ fixpoint.Recorder = (*Journal)(nil)

// RecordUpdate appends one slot transition to the journal. Labels are
// normalized to NFC so the same entity always journals under one spelling.
func (j *Journal) RecordUpdate(u fixpoint.UpdateRecord) error {
	final := 0
	if u.Final {
		final = 1
	}
	_, err := j.db.Exec(`
		INSERT INTO updates
		(run, seq, entity, kind, bound, final, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		u.Run,
		u.Seq,
		CanonicalLabel(u.Entity),
		CanonicalLabel(u.Kind),
		u.Bound,
		final,
		u.Origin,
	)
	if err != nil {
		return fmt.Errorf("record update: %w", err)
	}
	return nil
}

// RecordEdge appends one observed dependency to the journal.
func (j *Journal) RecordEdge(e fixpoint.EdgeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO edges
		(run, seq, depender_entity, depender_kind, dependee_entity, dependee_kind)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		e.Run,
		e.Seq,
		CanonicalLabel(e.DependerEntity),
		CanonicalLabel(e.DependerKind),
		CanonicalLabel(e.DependeeEntity),
		CanonicalLabel(e.DependeeKind),
	)
	if err != nil {
		return fmt.Errorf("record edge: %w", err)
	}
	return nil
}
