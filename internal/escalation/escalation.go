// Package escalation walks the rubric tiers from strict to permissive until
// one of them yields a newly accepted candidate.
package escalation

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/model"
)

// AttemptFunc runs search and evaluation at one tier and returns how many
// accepted candidates were new, after dedup against existing ones.
type AttemptFunc func(ctx context.Context, tier model.Tier) (int, error)

// Outcome describes where escalation stopped.
type Outcome struct {
	Final     model.Tier
	Attempted []model.Tier
	Found     int
}

// Run calls attempt at start, then at each looser tier while the previous
// attempt found nothing. It stops at the first tier with Found > 0 or after
// TierEasy. Finding nothing at every tier is not an error.
func Run(ctx context.Context, start model.Tier, attempt AttemptFunc) (Outcome, error) {
	if !start.Valid() {
		return Outcome{}, eris.Errorf("escalation: invalid start tier %d", int(start))
	}

	out := Outcome{Final: start}
	tier := start
	for {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "escalation: cancelled")
		}

		found, err := attempt(ctx, tier)
		out.Attempted = append(out.Attempted, tier)
		out.Final = tier
		if err != nil {
			return out, eris.Wrapf(err, "escalation: attempt at %s", tier)
		}
		out.Found = found

		if found > 0 {
			return out, nil
		}

		next, ok := tier.Next()
		if !ok {
			return out, nil
		}
		zap.L().Info("escalation: no new candidates, relaxing tier",
			zap.Stringer("from", tier),
			zap.Stringer("to", next),
		)
		tier = next
	}
}
