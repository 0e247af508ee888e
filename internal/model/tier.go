package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier is the strictness level of the suitability rubric. Lower values are
// stricter; escalation walks from TierHard toward TierEasy.
type Tier int

const (
	TierHard Tier = iota
	TierMedium
	TierEasy
)

func (t Tier) String() string {
	switch t {
	case TierHard:
		return "hard"
	case TierMedium:
		return "medium"
	case TierEasy:
		return "easy"
	default:
		return "unknown"
	}
}

// Next returns the next looser tier. The second value is false once TierEasy
// has been reached.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierHard:
		return TierMedium, true
	case TierMedium:
		return TierEasy, true
	default:
		return t, false
	}
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t >= TierHard && t <= TierEasy
}

// ParseTier maps a difficulty string to a Tier. An empty string means hard.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hard":
		return TierHard, nil
	case "medium":
		return TierMedium, nil
	case "easy":
		return TierEasy, nil
	default:
		return TierHard, eris.Errorf("model: unknown difficulty %q", s)
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, eris.Errorf("model: invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// InfluencerTier tags an accepted candidate by audience size.
type InfluencerTier string

const (
	InfluencerNano    InfluencerTier = "nano"
	InfluencerMicro   InfluencerTier = "micro"
	InfluencerMidTier InfluencerTier = "mid-tier"
	InfluencerMacro   InfluencerTier = "macro"
	InfluencerMega    InfluencerTier = "mega"
)

// ParseInfluencerTier normalizes free-form model output ("Mid Tier", "MACRO")
// to a known tag.
func ParseInfluencerTier(s string) (InfluencerTier, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	switch norm {
	case "nano":
		return InfluencerNano, true
	case "micro":
		return InfluencerMicro, true
	case "mid-tier", "midtier", "mid":
		return InfluencerMidTier, true
	case "macro":
		return InfluencerMacro, true
	case "mega":
		return InfluencerMega, true
	default:
		return "", false
	}
}

// InfluencerTierForAudience buckets an audience size using the common
// industry thresholds (1k / 10k / 100k / 1M).
func InfluencerTierForAudience(followers int64) InfluencerTier {
	switch {
	case followers >= 1_000_000:
		return InfluencerMega
	case followers >= 100_000:
		return InfluencerMacro
	case followers >= 10_000:
		return InfluencerMidTier
	case followers >= 1_000:
		return InfluencerMicro
	default:
		return InfluencerNano
	}
}
