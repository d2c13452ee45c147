// Package vclock implements vector clocks: per-peer version counters used
// to establish a happens-before partial order between file states without
// relying on synchronized wall clocks.
package vclock

import (
	"cmp"
	"encoding/json"
	"slices"
)

// Clock maps peer-id to a monotonically increasing counter. The zero value
// is a valid empty clock. Missing keys are treated as zero, so Clock{} is
// the identity element for Merge and compares Equal to any all-zero clock.
type Clock struct {
	counters map[string]uint64
}

// New returns an empty Clock.
func New() *Clock {
	return &Clock{counters: make(map[string]uint64)}
}

// Increment returns a new Clock equal to c with peer's counter bumped by
// one. c is not mutated, so callers can safely share a Clock across
// goroutines as long as they treat it as immutable.
func (c *Clock) Increment(peer string) *Clock {
	out := c.Clone()
	out.counters[peer] = out.counters[peer] + 1

	return out
}

// Get returns peer's counter, or zero if absent.
func (c *Clock) Get(peer string) uint64 {
	if c == nil {
		return 0
	}

	return c.counters[peer]
}

// Clone returns a deep copy of c.
func (c *Clock) Clone() *Clock {
	out := New()
	if c == nil {
		return out
	}

	for k, v := range c.counters {
		out.counters[k] = v
	}

	return out
}

// Peers returns the clock's peer-ids in sorted order, for deterministic
// iteration (logging, hashing).
func (c *Clock) Peers() []string {
	if c == nil {
		return nil
	}

	peers := make([]string, 0, len(c.counters))
	for k := range c.counters {
		peers = append(peers, k)
	}
	slices.Sort(peers)

	return peers
}

// Merge returns the element-wise maximum of a and b, the standard vector
// clock join. Neither input is mutated.
func Merge(a, b *Clock) *Clock {
	out := New()

	for _, peer := range a.Peers() {
		out.counters[peer] = a.Get(peer)
	}

	for _, peer := range b.Peers() {
		if v := b.Get(peer); v > out.counters[peer] {
			out.counters[peer] = v
		}
	}

	return out
}

// Relation is the result of comparing two clocks under the partial order
// they induce.
type Relation int

// Possible outcomes of Compare.
const (
	Equal Relation = iota
	Ancestor
	Descendant
	Concurrent
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "equal"
	case Ancestor:
		return "ancestor"
	case Descendant:
		return "descendant"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Compare returns how a relates to b: Equal when every counter matches,
// Ancestor when a <= b everywhere with at least one strict inequality,
// Descendant when the reverse holds, and Concurrent otherwise. Compare is
// symmetric under swap: Compare(a,b) and Compare(b,a) are Equal<->Equal,
// Ancestor<->Descendant, Concurrent<->Concurrent.
func Compare(a, b *Clock) Relation {
	peers := unionPeers(a, b)

	aLessOrEqual := true
	bLessOrEqual := true

	for _, peer := range peers {
		av, bv := a.Get(peer), b.Get(peer)
		if av > bv {
			aLessOrEqual = false
		}
		if bv > av {
			bLessOrEqual = false
		}
	}

	switch {
	case aLessOrEqual && bLessOrEqual:
		return Equal
	case aLessOrEqual:
		return Ancestor
	case bLessOrEqual:
		return Descendant
	default:
		return Concurrent
	}
}

func unionPeers(a, b *Clock) []string {
	set := make(map[string]struct{})
	for _, p := range a.Peers() {
		set[p] = struct{}{}
	}
	for _, p := range b.Peers() {
		set[p] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.SortFunc(out, func(x, y string) int { return cmp.Compare(x, y) })

	return out
}

// MarshalJSON encodes the clock as a flat {peer: counter} object.
func (c *Clock) MarshalJSON() ([]byte, error) {
	if c == nil || c.counters == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(c.counters)
}

// UnmarshalJSON decodes a flat {peer: counter} object into the clock.
func (c *Clock) UnmarshalJSON(data []byte) error {
	m := make(map[string]uint64)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	c.counters = m

	return nil
}
