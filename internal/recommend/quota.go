package recommend

import "math"

// quota tracks the known and new buckets of one selection pass.
type quota struct {
	wantKnown int
	wantNew   int
	known     []Record
	fresh     []Record
}

// newQuota splits target into known and new slots. The known share is
// rounded up.
func newQuota(target int, knownRatio float64) *quota {
	// Guard against float error such as 10*0.3 = 3.0000000000000004.
	wantKnown := int(math.Ceil(float64(target)*knownRatio - 1e-9))
	wantKnown = min(max(wantKnown, 0), target)
	return &quota{
		wantKnown: wantKnown,
		wantNew:   target - wantKnown,
	}
}

// room reports whether the bucket for the given category is below its quota.
func (q *quota) room(isKnown bool) bool {
	if isKnown {
		return len(q.known) < q.wantKnown
	}
	return len(q.fresh) < q.wantNew
}

// add places r in its bucket if there is room.
func (q *quota) add(r Record) bool {
	if !q.room(r.IsKnown) {
		return false
	}
	if r.IsKnown {
		q.known = append(q.known, r)
	} else {
		q.fresh = append(q.fresh, r)
	}
	return true
}

// satisfied reports whether both buckets are full. Expansion stops as soon
// as it holds.
func (q *quota) satisfied() bool {
	return !q.room(true) && !q.room(false)
}

// newFilled reports whether the new bucket is full.
func (q *quota) newFilled() bool {
	return !q.room(false)
}

// records returns known followed by new.
func (q *quota) records() []Record {
	out := make([]Record, 0, len(q.known)+len(q.fresh))
	out = append(out, q.known...)
	return append(out, q.fresh...)
}
