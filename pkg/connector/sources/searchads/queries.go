package searchads

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/models"
)

// Column projects one field of a search result onto an output column.
type Column struct {
	// Field is the query language field, e.g. metrics.cost_micros.
	Field string
	// Name is the output column.
	Name string
	// Type drives conversion of the JSON value.
	Type models.FieldType
}

// Report is one fixed search query and its column projection.
type Report struct {
	Name    string
	From    string
	Columns []Column
}

// Reports lists the supported reports in emission order.
var Reports = []Report{
	{
		Name: "asset_report_daily",
		From: "ad_group_ad_asset_view",
		Columns: []Column{
			{"metrics.clicks", "clicks", models.FieldTypeBigInt},
			{"metrics.conversions", "conversions", models.FieldTypeFloat},
			{"metrics.conversions_value", "conversions_value", models.FieldTypeFloat},
			{"metrics.cost_micros", "cost_micros", models.FieldTypeBigInt},
			{"metrics.impressions", "impressions", models.FieldTypeBigInt},
			{"campaign.id", "campaign_id", models.FieldTypeBigInt},
			{"campaign.name", "campaign_name", models.FieldTypeString},
			{"customer.id", "customer_id", models.FieldTypeBigInt},
			{"ad_group.id", "ad_group_id", models.FieldTypeBigInt},
			{"ad_group.name", "ad_group_name", models.FieldTypeString},
			{"asset.id", "asset_id", models.FieldTypeBigInt},
			{"segments.date", "date", models.FieldTypeDate},
		},
	},
	{
		Name: "ad_report_daily",
		From: "ad_group_ad",
		Columns: []Column{
			{"metrics.clicks", "clicks", models.FieldTypeBigInt},
			{"metrics.conversions", "conversions", models.FieldTypeFloat},
			{"metrics.conversions_value", "conversions_value", models.FieldTypeFloat},
			{"metrics.impressions", "impressions", models.FieldTypeBigInt},
			{"metrics.cost_micros", "cost_micros", models.FieldTypeBigInt},
			{"metrics.video_quartile_p25_rate", "video_quartile_p25_rate", models.FieldTypeFloat},
			{"metrics.video_quartile_p50_rate", "video_quartile_p50_rate", models.FieldTypeFloat},
			{"metrics.video_quartile_p75_rate", "video_quartile_p75_rate", models.FieldTypeFloat},
			{"metrics.video_quartile_p100_rate", "video_quartile_p100_rate", models.FieldTypeFloat},
			{"customer.id", "customer_id", models.FieldTypeBigInt},
			{"campaign.id", "campaign_id", models.FieldTypeBigInt},
			{"campaign.name", "campaign_name", models.FieldTypeString},
			{"ad_group.id", "ad_group_id", models.FieldTypeBigInt},
			{"ad_group.name", "ad_group_name", models.FieldTypeString},
			{"ad_group.status", "ad_group_status", models.FieldTypeString},
			{"ad_group_ad.ad.id", "ad_group_ad_ad_id", models.FieldTypeBigInt},
			{"segments.date", "date", models.FieldTypeDate},
		},
	},
}

// LookupReport finds a report by name.
func LookupReport(name string) (*Report, bool) {
	for i := range Reports {
		if Reports[i].Name == name {
			return &Reports[i], true
		}
	}
	return nil, false
}

// Query renders the search query for the date window.
func (r *Report) Query(start, end *time.Time) string {
	fields := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		fields[i] = c.Field
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(fields, ", "), r.From, DatePredicate("segments.date", start, end))
}

// Schema describes the report as an output table. Rows are keyed by every
// dimension column.
func (r *Report) Schema() *models.Schema {
	schema := &models.Schema{Name: r.Name, Version: "1"}
	for _, c := range r.Columns {
		key := !strings.HasPrefix(c.Field, "metrics.")
		schema.Fields = append(schema.Fields, models.Field{Name: c.Name, Type: c.Type, Required: key})
		if key {
			schema.PrimaryKey = append(schema.PrimaryKey, c.Name)
		}
	}
	return schema
}

// DatePredicate restricts field to the inclusive window. Without bounds the
// last 30 days are selected, since the API requires a finite date range
// whenever segments.date is selected.
func DatePredicate(field string, start, end *time.Time) string {
	format := func(t *time.Time) string { return "'" + t.Format(config.DateLayout) + "'" }
	switch {
	case start != nil && end != nil:
		return fmt.Sprintf("%s BETWEEN %s AND %s", field, format(start), format(end))
	case start != nil:
		return fmt.Sprintf("%s >= %s", field, format(start))
	case end != nil:
		return fmt.Sprintf("%s <= %s", field, format(end))
	default:
		return field + " DURING LAST_30_DAYS"
	}
}

// Project flattens one search result into the report's columns. The REST
// API uses lowerCamelCase keys, encodes 64-bit integers as strings and omits
// zero values; missing numbers become 0 and missing strings "".
func (r *Report) Project(result map[string]interface{}) (map[string]interface{}, error) {
	row := make(map[string]interface{}, len(r.Columns))
	for _, c := range r.Columns {
		raw, ok := lookup(result, c.Field)
		v, err := convert(raw, ok, c.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.Field, err)
		}
		row[c.Name] = v
	}
	return row, nil
}

func lookup(result map[string]interface{}, field string) (interface{}, bool) {
	var cur interface{} = result
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[lowerCamel(part)]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// lowerCamel turns video_quartile_p25_rate into videoQuartileP25Rate.
func lowerCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func convert(raw interface{}, present bool, t models.FieldType) (interface{}, error) {
	switch t {
	case models.FieldTypeBigInt:
		if !present {
			return int64(0), nil
		}
		switch v := raw.(type) {
		case string:
			return strconv.ParseInt(v, 10, 64)
		case float64:
			return int64(v), nil
		default:
			return toNumber(raw, func(s string) (interface{}, error) { return strconv.ParseInt(s, 10, 64) })
		}
	case models.FieldTypeFloat:
		if !present {
			return float64(0), nil
		}
		switch v := raw.(type) {
		case float64:
			return v, nil
		case string:
			return strconv.ParseFloat(v, 64)
		default:
			return toNumber(raw, func(s string) (interface{}, error) { return strconv.ParseFloat(s, 64) })
		}
	default:
		if !present || raw == nil {
			return "", nil
		}
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	}
}

// toNumber handles json.Number style values.
func toNumber(raw interface{}, parse func(string) (interface{}, error)) (interface{}, error) {
	if s, ok := raw.(fmt.Stringer); ok {
		return parse(s.String())
	}
	return nil, fmt.Errorf("unexpected value %v", raw)
}
