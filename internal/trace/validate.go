package trace

import (
	"context"
	"errors"
	"fmt"
)

// ValidateRun checks a journaled run for internal consistency:
//
//   - every slot's updates have strictly ascending sequence numbers
//   - no slot is updated again after its final bound
//   - every slot's last update is final (the run reached a fixpoint)
//
// The journal stores bounds as display strings, so refinement-order
// violations between value bounds are the engine's job to catch; this
// checks what the journal alone can prove.
func (j *Journal) ValidateRun(ctx context.Context, run string) error {
	updates, err := j.Updates(ctx, run)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return fmt.Errorf("validate run %s: no updates journaled", run)
	}

	type slotKey struct{ entity, kind string }
	type slotState struct {
		lastSeq int64
		final   bool
	}
	slots := make(map[slotKey]*slotState)
	var order []slotKey
	var errs []error

	for _, u := range updates {
		key := slotKey{u.Entity, u.Kind}
		st, ok := slots[key]
		if !ok {
			st = &slotState{lastSeq: -1}
			slots[key] = st
			order = append(order, key)
		}
		if st.final {
			errs = append(errs, fmt.Errorf(
				"slot (%s, %s): update at seq %d after final bound",
				u.Entity, u.Kind, u.Seq))
		}
		if u.Seq <= st.lastSeq {
			errs = append(errs, fmt.Errorf(
				"slot (%s, %s): non-ascending seq %d after %d",
				u.Entity, u.Kind, u.Seq, st.lastSeq))
		}
		st.lastSeq = u.Seq
		st.final = st.final || u.Final
	}

	for _, key := range order {
		if !slots[key].final {
			errs = append(errs, fmt.Errorf(
				"slot (%s, %s): run ended without a final bound",
				key.entity, key.kind))
		}
	}

	return errors.Join(errs...)
}
