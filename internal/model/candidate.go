package model

import "time"

// CandidateStatus is the outreach status of a stored candidate.
type CandidateStatus string

const (
	CandidateActive   CandidateStatus = "active"
	CandidateInactive CandidateStatus = "inactive"
)

// Metrics holds optional platform audience numbers. Extra carries
// platform-specific values such as Stripe lifetime spend.
type Metrics struct {
	Followers *int64             `json:"followers,omitempty"`
	Views     *int64             `json:"views,omitempty"`
	Posts     *int64             `json:"posts,omitempty"`
	Extra     map[string]float64 `json:"extra,omitempty"`
}

// Audience returns the follower count or zero when unknown.
func (m Metrics) Audience() int64 {
	if m.Followers == nil {
		return 0
	}
	return *m.Followers
}

// RawCandidate is one account returned by a platform search, before evaluation.
type RawCandidate struct {
	Platform    Platform `json:"platform"`
	Handle      string   `json:"handle"`
	DisplayName string   `json:"display_name"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	ProfileURL  string   `json:"profile_url,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Metrics     Metrics  `json:"metrics"`
}

// Verdict is the evaluator's decision for one candidate at one tier.
type Verdict struct {
	Accept bool           `json:"accept"`
	Tag    InfluencerTier `json:"tag"`
	Reason string         `json:"reason"`
}

// Candidate is an evaluated account stored in a campaign aggregate.
type Candidate struct {
	Handle       string          `json:"handle"`
	DisplayName  string          `json:"display_name"`
	AvatarURL    string          `json:"avatar_url,omitempty"`
	ProfileURL   string          `json:"profile_url,omitempty"`
	Accepted     bool            `json:"accepted"`
	Tag          InfluencerTier  `json:"tag,omitempty"`
	Reason       string          `json:"reason"`
	Status       CandidateStatus `json:"status"`
	Metrics      Metrics         `json:"metrics"`
	RunMode      RunMode         `json:"run_mode"`
	DiscoveredAt time.Time       `json:"discovered_at"`
}

// IsActive reports whether the candidate counts against the campaign quota.
func (c Candidate) IsActive() bool {
	return c.Status == CandidateActive
}

// NewCandidate builds a stored candidate from a raw search hit and its verdict.
func NewCandidate(raw RawCandidate, v Verdict, mode RunMode, now time.Time) Candidate {
	return Candidate{
		Handle:       raw.Handle,
		DisplayName:  raw.DisplayName,
		AvatarURL:    raw.AvatarURL,
		ProfileURL:   raw.ProfileURL,
		Accepted:     v.Accept,
		Tag:          v.Tag,
		Reason:       v.Reason,
		Status:       CandidateActive,
		Metrics:      raw.Metrics,
		RunMode:      mode,
		DiscoveredAt: now,
	}
}

// Aggregate is the single persisted record of candidates for one campaign.
// Version is bumped on every write and guards concurrent replacement.
type Aggregate struct {
	CampaignID string      `json:"campaign_id"`
	Platform   Platform    `json:"platform"`
	TierUsed   Tier        `json:"tier_used"`
	Candidates []Candidate `json:"candidates"`
	Version    int64       `json:"version"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
