package appstore

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/storepulse/pkg/models"
)

// ReportSchema is the static description of one analytics report type.
type ReportSchema struct {
	// Name is the report name as the API knows it.
	Name string
	// Resource is the output table name.
	Resource string
	// PrimaryKey lists the columns that identify a row.
	PrimaryKey []string
	// Hints gives the type of columns that are not plain strings.
	Hints map[string]models.FieldType
}

// Reports lists every supported report type in emission order.
var Reports = []ReportSchema{
	{
		Name:     "App Downloads Detailed",
		Resource: "app-downloads-detailed",
		PrimaryKey: []string{
			"app_apple_identifier", "app_name", "app_version", "campaign", "date",
			"device", "download_type", "page_title", "page_type", "platform_version",
			"pre_order", "processing_date", "source_info", "source_type", "territory",
		},
		Hints: map[string]models.FieldType{
			"date":                 models.FieldTypeDate,
			"app_apple_identifier": models.FieldTypeBigInt,
			"counts":               models.FieldTypeBigInt,
			"processing_date":      models.FieldTypeDate,
		},
	},
	{
		Name:     "App Store Discovery and Engagement Detailed",
		Resource: "app-store-discovery-and-engagement-detailed",
		PrimaryKey: []string{
			"app_apple_identifier", "app_name", "campaign", "date", "device",
			"engagement_type", "event", "page_title", "page_type", "platform_version",
			"processing_date", "source_info", "source_type", "territory",
		},
		Hints: map[string]models.FieldType{
			"date":                 models.FieldTypeDate,
			"app_apple_identifier": models.FieldTypeBigInt,
			"counts":               models.FieldTypeBigInt,
			"unique_counts":        models.FieldTypeBigInt,
			"processing_date":      models.FieldTypeDate,
		},
	},
	{
		Name:     "App Sessions Detailed",
		Resource: "app-sessions-detailed",
		PrimaryKey: []string{
			"processing_date", "date", "app_name", "app_apple_identifier", "app_version",
			"device", "platform_version", "source_type", "source_info", "campaign",
			"page_type", "page_title", "app_download_date", "territory",
		},
		Hints: map[string]models.FieldType{
			"date":                   models.FieldTypeDate,
			"app_apple_identifier":   models.FieldTypeBigInt,
			"sessions":               models.FieldTypeBigInt,
			"total_session_duration": models.FieldTypeBigInt,
			"unique_devices":         models.FieldTypeBigInt,
			"processing_date":        models.FieldTypeDate,
		},
	},
	{
		Name:     "App Store Installation and Deletion Detailed",
		Resource: "app-store-installation-and-deletion-detailed",
		PrimaryKey: []string{
			"app_apple_identifier", "app_download_date", "app_name", "app_version", "campaign",
			"counts", "date", "device", "download_type", "event", "page_title", "page_type",
			"platform_version", "processing_date", "source_info", "source_type", "territory",
			"unique_devices",
		},
		Hints: map[string]models.FieldType{
			"date":                 models.FieldTypeDate,
			"app_apple_identifier": models.FieldTypeBigInt,
			"counts":               models.FieldTypeBigInt,
			"unique_devices":       models.FieldTypeBigInt,
			"app_download_date":    models.FieldTypeDate,
			"processing_date":      models.FieldTypeDate,
		},
	},
	{
		Name:     "App Store Purchases Detailed",
		Resource: "app-store-purchases-detailed",
		PrimaryKey: []string{
			"app_apple_identifier", "app_download_date", "app_name", "campaign",
			"content_apple_identifier", "content_name", "date", "device", "page_title",
			"page_type", "payment_method", "platform_version", "pre_order", "processing_date",
			"purchase_type", "source_info", "source_type", "territory",
		},
		Hints: map[string]models.FieldType{
			"date":                     models.FieldTypeDate,
			"app_apple_identifier":     models.FieldTypeBigInt,
			"app_download_date":        models.FieldTypeDate,
			"content_apple_identifier": models.FieldTypeBigInt,
			"purchases":                models.FieldTypeBigInt,
			"proceeds_in_usd":          models.FieldTypeFloat,
			"sales_in_usd":             models.FieldTypeFloat,
			"paying_users":             models.FieldTypeBigInt,
			"processing_date":          models.FieldTypeDate,
		},
	},
}

// LookupReport finds a report by API name or resource name.
func LookupReport(name string) (*ReportSchema, bool) {
	for i := range Reports {
		if Reports[i].Name == name || Reports[i].Resource == name {
			return &Reports[i], true
		}
	}
	return nil, false
}

// Schema describes the report as an output table: primary key columns in
// key order, then the remaining hinted columns alphabetically.
func (r *ReportSchema) Schema() *models.Schema {
	fields := make([]models.Field, 0, len(r.PrimaryKey)+len(r.Hints))
	inKey := make(map[string]struct{}, len(r.PrimaryKey))
	for _, column := range r.PrimaryKey {
		inKey[column] = struct{}{}
		fields = append(fields, models.Field{Name: column, Type: r.columnType(column), Required: true})
	}

	extra := make([]string, 0, len(r.Hints))
	for column := range r.Hints {
		if _, ok := inKey[column]; !ok {
			extra = append(extra, column)
		}
	}
	sort.Strings(extra)
	for _, column := range extra {
		fields = append(fields, models.Field{Name: column, Type: r.Hints[column]})
	}

	return &models.Schema{
		Name:       r.Resource,
		Version:    "1",
		Fields:     fields,
		PrimaryKey: append([]string(nil), r.PrimaryKey...),
	}
}

func (r *ReportSchema) columnType(column string) models.FieldType {
	if t, ok := r.Hints[column]; ok {
		return t
	}
	return models.FieldTypeString
}

// ApplyHints converts numeric columns in place. Empty numeric cells become
// nil; values that do not parse are left as strings. Date columns stay ISO
// strings.
func (r *ReportSchema) ApplyHints(row Row) {
	for column, hint := range r.Hints {
		raw, ok := row[column].(string)
		if !ok {
			continue
		}
		switch hint {
		case models.FieldTypeBigInt:
			if strings.TrimSpace(raw) == "" {
				row[column] = nil
			} else if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
				row[column] = v
			}
		case models.FieldTypeFloat:
			if strings.TrimSpace(raw) == "" {
				row[column] = nil
			} else if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				row[column] = v
			}
		}
	}
}
