// Package model defines the shared domain types for affiliate discovery.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Platform identifies the source a campaign discovers promoters on.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitter Platform = "twitter"
	PlatformStripe  Platform = "stripe"
)

// Platforms lists every supported platform.
var Platforms = []Platform{PlatformYouTube, PlatformTwitter, PlatformStripe}

// ParsePlatform validates a platform name. "x" is accepted as an alias for twitter.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "youtube":
		return PlatformYouTube, nil
	case "twitter", "x":
		return PlatformTwitter, nil
	case "stripe":
		return PlatformStripe, nil
	default:
		return "", eris.Errorf("model: unknown platform %q", s)
	}
}

// CampaignStatus is the lifecycle status of a campaign.
type CampaignStatus string

const (
	CampaignStatusCreated      CampaignStatus = "created"
	CampaignStatusDiscovering  CampaignStatus = "discovering"
	CampaignStatusCompleted    CampaignStatus = "completed"
	CampaignStatusNoCandidates CampaignStatus = "no_candidates"
	CampaignStatusFailed       CampaignStatus = "failed"
)

// RunMode controls whether outreach to an accepted candidate is manual or automatic.
type RunMode string

const (
	RunModeManual    RunMode = "manual"
	RunModeAutomatic RunMode = "automatic"
)

// Product is the thing being promoted. Only the fields discovery needs are kept.
type Product struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
}

// Commission holds per-action payout amounts.
type Commission struct {
	Lead  float64 `json:"lead"`
	Click float64 `json:"click"`
	Sale  float64 `json:"sale"`
}

// Campaign (a.k.a. pipeline) is one discovery request scoped to a product,
// a platform and a candidate quota.
type Campaign struct {
	ID         string         `json:"id"`
	ProductID  string         `json:"product_id"`
	OwnerID    string         `json:"owner_id"`
	OwnerEmail string         `json:"owner_email"`
	Name       string         `json:"name"`
	Quota      int            `json:"quota"`
	Platform   Platform       `json:"platform"`
	Location   string         `json:"location,omitempty"`
	RadiusKM   float64        `json:"radius_km,omitempty"`
	Commission Commission     `json:"commission"`
	RunMode    RunMode        `json:"run_mode"`
	Difficulty Tier           `json:"difficulty"`
	Status     CampaignStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Validate checks the fields every campaign needs before discovery can run.
func (c *Campaign) Validate() error {
	if c.ID == "" {
		return eris.New("model: campaign id is required")
	}
	if c.ProductID == "" {
		return eris.New("model: campaign product id is required")
	}
	if c.Quota <= 0 {
		return eris.Errorf("model: campaign quota must be positive, got %d", c.Quota)
	}
	if _, err := ParsePlatform(string(c.Platform)); err != nil {
		return err
	}
	if c.RadiusKM < 0 {
		return eris.New("model: campaign radius must not be negative")
	}
	return nil
}
