package decision

import "github.com/driftsync/driftsync/internal/state"

// ResolveUncertain re-decides a path after the orchestrator has fetched
// remote's full state including tombstones for an Uncertain result.
// If the re-decision is still Uncertain — both sides Exist with equal or
// absent vector clocks and differing hashes, i.e. legacy data with no
// causality info — it is treated as Conflict rather than returned again,
// since there is no further query that could resolve it (spec.md §4.5.1).
func ResolveUncertain(local *state.FileState, fetchedRemote *state.FileState, path string) Action {
	action := Decide(local, fetchedRemote, path)
	if action == Uncertain {
		return Conflict
	}

	return action
}
