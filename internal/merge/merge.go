// Package merge combines newly accepted candidates with a campaign's stored
// candidates. Stored entries always win and are never modified.
package merge

import (
	"strings"

	"github.com/sells-group/affiliate-scout/internal/model"
)

// Result is the merged candidate list and how many new entries it gained.
type Result struct {
	Candidates []model.Candidate
	Added      int
}

// Key normalizes a handle for comparison. Handles differing only in case or
// a leading "@" refer to the same account.
func Key(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// Fresh returns the accepted candidates whose handle is neither in existing
// nor repeated earlier in accepted, preserving order.
func Fresh(existing, accepted []model.Candidate) []model.Candidate {
	seen := make(map[string]struct{}, len(existing)+len(accepted))
	for _, c := range existing {
		seen[Key(c.Handle)] = struct{}{}
	}
	var out []model.Candidate
	for _, c := range accepted {
		k := Key(c.Handle)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Remaining returns how many more active candidates the quota allows.
func Remaining(existing []model.Candidate, quota int) int {
	active := 0
	for _, c := range existing {
		if c.IsActive() {
			active++
		}
	}
	return max(0, quota-active)
}

// Apply appends the fresh accepted candidates to existing, truncated to the
// remaining quota. The result is deduplicated by handle keeping the first
// occurrence, so existing entries keep their position and fields.
func Apply(existing, accepted []model.Candidate, quota int) Result {
	fresh := Fresh(existing, accepted)
	if room := Remaining(existing, quota); len(fresh) > room {
		fresh = fresh[:room]
	}

	out := make([]model.Candidate, 0, len(existing)+len(fresh))
	seen := make(map[string]struct{}, cap(out))
	for _, c := range existing {
		k := Key(c.Handle)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	out = append(out, fresh...)

	return Result{Candidates: out, Added: len(fresh)}
}
