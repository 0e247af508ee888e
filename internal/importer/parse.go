package importer

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/affiliate-scout/internal/model"
)

// Format is the spreadsheet encoding of an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the format from a file extension. Anything that is
// not .xlsx is read as CSV.
func FormatFromName(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// columnAliases maps normalized header names onto ImportRow fields.
var columnAliases = map[string]string{
	"campaign":            "campaign_name",
	"campaign_name":       "campaign_name",
	"pipeline_name":       "campaign_name",
	"product":             "product_name",
	"product_name":        "product_name",
	"product_description": "product_description",
	"description":         "product_description",
	"product_price":       "product_price",
	"price":               "product_price",
	"platform":            "platform",
	"affiliate_count":     "affiliate_count",
	"quota":               "affiliate_count",
	"difficulty":          "difficulty",
	"location":            "location",
	"radius":              "radius_km",
	"radius_km":           "radius_km",
	"commission_lead":     "commission_lead",
	"commission_click":    "commission_click",
	"commission_sale":     "commission_sale",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return h
}

// ReadRows parses an upload into import rows. The first row is the header;
// RowNumber is the 1-based spreadsheet line, so the first data row is 2.
// Fully blank rows are skipped.
func ReadRows(r io.Reader, format Format, charset string) ([]model.ImportRow, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatXLSX:
		records, err = readXLSX(r)
	case FormatCSV, "":
		records, err = readCSV(r, charset)
	default:
		return nil, eris.Errorf("importer: unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.New("importer: file is empty")
	}

	header := make([]string, len(records[0]))
	known := 0
	for i, h := range records[0] {
		if field, ok := columnAliases[normalizeHeader(h)]; ok {
			header[i] = field
			known++
		}
	}
	if known == 0 {
		return nil, eris.New("importer: header row has no recognized columns")
	}

	var rows []model.ImportRow
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := model.ImportRow{RowNumber: i + 2}
		for j, v := range rec {
			if j >= len(header) || header[j] == "" {
				continue
			}
			setField(&row, header[j], strings.TrimSpace(v))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func setField(row *model.ImportRow, field, v string) {
	switch field {
	case "campaign_name":
		row.CampaignName = v
	case "product_name":
		row.ProductName = v
	case "product_description":
		row.ProductDescription = v
	case "product_price":
		row.ProductPrice = v
	case "platform":
		row.Platform = v
	case "affiliate_count":
		row.AffiliateCount = v
	case "difficulty":
		row.Difficulty = v
	case "location":
		row.Location = v
	case "radius_km":
		row.RadiusKM = v
	case "commission_lead":
		row.CommissionLead = v
	case "commission_click":
		row.CommissionClick = v
	case "commission_sale":
		row.CommissionSale = v
	}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// readCSV decodes r from charset (an HTML encoding label) to UTF-8. A byte
// order mark overrides the label.
func readCSV(r io.Reader, charset string) ([][]string, error) {
	if charset == "" {
		charset = "utf-8"
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: unsupported charset %q", charset)
	}
	decoded := transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv")
	}
	return records, nil
}

// readXLSX reads the first sheet of a workbook.
func readXLSX(r io.Reader) ([][]string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, eris.Wrap(err, "importer: read xlsx")
	}
	f, err := xlsx.OpenBinary(buf.Bytes())
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return records, nil
}
