package envelope

import (
	"fmt"

	"github.com/jobforge/jobforge/pkg/codec"
)

// Bundle packages everything needed to judge whether a replayed run
// reproduced an original one: the input snapshot, the decision
// sequence, and a hash of the recorded outputs (spec §4.8 step 4).
type Bundle struct {
	RunID        string
	Snapshot     *InputSnapshot
	Decisions    []Decision
	OutputsHash  string
	EnvFP        map[string]any
}

// Diff describes one field that disagreed between an original run and
// its replay.
type Diff struct {
	Field    string
	Original any
	Replayed any
}

// Compare reports whether replayed reproduced original: spec §4.8 step
// 4 requires the input hash, output hash and decision sequence to all
// match for a replay to be considered identical. Nothing else (env
// fingerprint, decision timing) is compared or reported as a Diff.
func Compare(original, replayed *Bundle) ([]Diff, bool) {
	var diffs []Diff

	if original.Snapshot.Hash != replayed.Snapshot.Hash {
		diffs = append(diffs, Diff{Field: "input_hash", Original: original.Snapshot.Hash, Replayed: replayed.Snapshot.Hash})
	}
	if original.OutputsHash != replayed.OutputsHash {
		diffs = append(diffs, Diff{Field: "outputs_hash", Original: original.OutputsHash, Replayed: replayed.OutputsHash})
	}
	if d, ok := compareDecisions(original.Decisions, replayed.Decisions); !ok {
		diffs = append(diffs, d...)
	}

	identical := len(diffs) == 0
	return diffs, identical
}

func compareDecisions(original, replayed []Decision) ([]Diff, bool) {
	if len(original) != len(replayed) {
		return []Diff{{Field: "decision_count", Original: len(original), Replayed: len(replayed)}}, false
	}

	var diffs []Diff
	for i := range original {
		oh, _, err := codec.Hash(decisionShape(original[i]))
		if err != nil {
			diffs = append(diffs, Diff{Field: fmt.Sprintf("decisions[%d]", i), Original: "<hash error>", Replayed: err.Error()})
			continue
		}
		rh, _, err := codec.Hash(decisionShape(replayed[i]))
		if err != nil {
			diffs = append(diffs, Diff{Field: fmt.Sprintf("decisions[%d]", i), Original: err.Error(), Replayed: "<hash error>"})
			continue
		}
		if oh != rh {
			diffs = append(diffs, Diff{
				Field:    fmt.Sprintf("decisions[%d]", i),
				Original: original[i],
				Replayed: replayed[i],
			})
		}
	}
	return diffs, len(diffs) == 0
}

// decisionShape strips timing/timestamp fields before hashing so
// non-deterministic wall-clock noise never fails a replay comparison —
// only the kind, step id, reason and contexts must match.
func decisionShape(d Decision) map[string]any {
	return map[string]any{
		"step_id":        d.StepID,
		"kind":           string(d.Kind),
		"reason":         d.Reason,
		"input_context":  d.InputContext,
		"output_context": d.OutputContext,
	}
}
