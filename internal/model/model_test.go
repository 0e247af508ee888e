package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierNext(t *testing.T) {
	t.Parallel()

	next, ok := TierHard.Next()
	assert.True(t, ok)
	assert.Equal(t, TierMedium, next)

	next, ok = TierMedium.Next()
	assert.True(t, ok)
	assert.Equal(t, TierEasy, next)

	_, ok = TierEasy.Next()
	assert.False(t, ok)
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Tier
		err  bool
	}{
		{"", TierHard, false},
		{"hard", TierHard, false},
		{" Medium ", TierMedium, false},
		{"EASY", TierEasy, false},
		{"brutal", TierHard, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTier(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTierJSON(t *testing.T) {
	t.Parallel()

	agg := Aggregate{CampaignID: "c1", TierUsed: TierMedium}
	b, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tier_used":"medium"`)

	var back Aggregate
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, TierMedium, back.TierUsed)
}

func TestParseInfluencerTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want InfluencerTier
		ok   bool
	}{
		{"nano", InfluencerNano, true},
		{"Micro", InfluencerMicro, true},
		{"Mid Tier", InfluencerMidTier, true},
		{"mid_tier", InfluencerMidTier, true},
		{"MACRO", InfluencerMacro, true},
		{"mega", InfluencerMega, true},
		{"giga", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseInfluencerTier(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestInfluencerTierForAudience(t *testing.T) {
	t.Parallel()

	assert.Equal(t, InfluencerNano, InfluencerTierForAudience(0))
	assert.Equal(t, InfluencerMicro, InfluencerTierForAudience(5_000))
	assert.Equal(t, InfluencerMidTier, InfluencerTierForAudience(10_000))
	assert.Equal(t, InfluencerMacro, InfluencerTierForAudience(250_000))
	assert.Equal(t, InfluencerMega, InfluencerTierForAudience(3_000_000))
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	p, err := ParsePlatform("X")
	require.NoError(t, err)
	assert.Equal(t, PlatformTwitter, p)

	_, err = ParsePlatform("myspace")
	assert.Error(t, err)
}

func TestCandidateIsActive(t *testing.T) {
	t.Parallel()

	assert.True(t, Candidate{Handle: "a", Status: CandidateActive}.IsActive())
	assert.False(t, Candidate{Handle: "b", Status: CandidateInactive}.IsActive())
}

func TestCampaignValidate(t *testing.T) {
	t.Parallel()

	c := Campaign{ID: "c1", ProductID: "p1", Quota: 5, Platform: PlatformYouTube}
	assert.NoError(t, c.Validate())

	bad := c
	bad.Quota = 0
	assert.Error(t, bad.Validate())

	bad = c
	bad.Platform = "tiktok"
	assert.Error(t, bad.Validate())
}

func TestImportRowMissing(t *testing.T) {
	t.Parallel()

	row := ImportRow{CampaignName: "Spring", ProductName: "Mug"}
	assert.Equal(t, []string{"product_description", "product_price"}, row.Missing())

	row.ProductDescription = "A mug"
	row.ProductPrice = "12"
	assert.Empty(t, row.Missing())
}

func TestImportRowParse(t *testing.T) {
	t.Parallel()

	row := ImportRow{
		ProductPrice:   "$1,299.50",
		AffiliateCount: "8",
		Platform:       "twitter",
		Difficulty:     "medium",
		RadiusKM:       "25",
		CommissionSale: "12.5",
	}
	parsed, problems := row.Parse(PlatformYouTube, 10)
	assert.Empty(t, problems)
	assert.InDelta(t, 1299.50, parsed.Price, 0.001)
	assert.Equal(t, 8, parsed.Quota)
	assert.Equal(t, PlatformTwitter, parsed.Platform)
	assert.Equal(t, TierMedium, parsed.Difficulty)
	assert.InDelta(t, 25.0, parsed.RadiusKM, 0.001)
	assert.InDelta(t, 12.5, parsed.Commission.Sale, 0.001)

	defaults, problems := ImportRow{ProductPrice: "5"}.Parse(PlatformStripe, 10)
	assert.Empty(t, problems)
	assert.Equal(t, PlatformStripe, defaults.Platform)
	assert.Equal(t, 10, defaults.Quota)
	assert.Equal(t, TierHard, defaults.Difficulty)

	_, problems = ImportRow{ProductPrice: "cheap", AffiliateCount: "-1", Platform: "vine"}.Parse(PlatformYouTube, 10)
	assert.ElementsMatch(t, []string{"invalid product_price", "invalid affiliate_count", "invalid platform"}, problems)
}
