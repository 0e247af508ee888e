package model

import (
	"strconv"
	"strings"
	"time"
)

// ImportJob is one CSV/XLSX import run. All job state is deleted once the run completes.
type ImportJob struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	OwnerEmail string    `json:"owner_email"`
	Processed  int       `json:"processed"`
	Created    int       `json:"created"`
	CreatedAt  time.Time `json:"created_at"`
}

// ImportRowError records why one row of an import was skipped.
type ImportRowError struct {
	RowNumber    int    `json:"row_number"`
	CampaignName string `json:"campaign_name,omitempty"`
	Message      string `json:"message"`
}

// ImportRow is one raw spreadsheet row mapped by column name.
type ImportRow struct {
	RowNumber          int    `json:"row_number"`
	CampaignName       string `json:"campaign_name"`
	ProductName        string `json:"product_name"`
	ProductDescription string `json:"product_description"`
	ProductPrice       string `json:"product_price"`
	Platform           string `json:"platform,omitempty"`
	AffiliateCount     string `json:"affiliate_count,omitempty"`
	Difficulty         string `json:"difficulty,omitempty"`
	Location           string `json:"location,omitempty"`
	RadiusKM           string `json:"radius_km,omitempty"`
	CommissionLead     string `json:"commission_lead,omitempty"`
	CommissionClick    string `json:"commission_click,omitempty"`
	CommissionSale     string `json:"commission_sale,omitempty"`
}

// Missing returns the names of required columns that are blank.
func (r ImportRow) Missing() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("campaign_name", r.CampaignName)
	check("product_name", r.ProductName)
	check("product_description", r.ProductDescription)
	check("product_price", r.ProductPrice)
	return missing
}

// ParsedImportRow holds the typed values of a validated row.
type ParsedImportRow struct {
	Price      float64
	Quota      int
	Platform   Platform
	Difficulty Tier
	Location   string
	RadiusKM   float64
	Commission Commission
}

// Parse converts the optional and numeric columns. Blank optional columns
// fall back to the given platform and quota defaults.
func (r ImportRow) Parse(defaultPlatform Platform, defaultQuota int) (ParsedImportRow, []string) {
	var problems []string
	out := ParsedImportRow{
		Platform: defaultPlatform,
		Quota:    defaultQuota,
		Location: strings.TrimSpace(r.Location),
	}

	num := func(name, v string, dst *float64) {
		v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$"))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil || f < 0 {
			problems = append(problems, "invalid "+name)
			return
		}
		*dst = f
	}

	num("product_price", r.ProductPrice, &out.Price)
	num("radius_km", r.RadiusKM, &out.RadiusKM)
	num("commission_lead", r.CommissionLead, &out.Commission.Lead)
	num("commission_click", r.CommissionClick, &out.Commission.Click)
	num("commission_sale", r.CommissionSale, &out.Commission.Sale)

	if v := strings.TrimSpace(r.AffiliateCount); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			problems = append(problems, "invalid affiliate_count")
		} else {
			out.Quota = n
		}
	}
	if v := strings.TrimSpace(r.Platform); v != "" {
		p, err := ParsePlatform(v)
		if err != nil {
			problems = append(problems, "invalid platform")
		} else {
			out.Platform = p
		}
	}
	if v := strings.TrimSpace(r.Difficulty); v != "" {
		t, err := ParseTier(v)
		if err != nil {
			problems = append(problems, "invalid difficulty")
		} else {
			out.Difficulty = t
		}
	}
	return out, problems
}
