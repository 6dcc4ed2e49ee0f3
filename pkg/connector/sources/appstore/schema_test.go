package appstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/models"
)

func TestReports_Table(t *testing.T) {
	require.Len(t, Reports, 5)

	for _, r := range Reports {
		t.Run(r.Resource, func(t *testing.T) {
			assert.Contains(t, r.PrimaryKey, ProcessingDateColumn)
			assert.Equal(t, models.FieldTypeDate, r.Hints[ProcessingDateColumn])
			assert.Equal(t, models.FieldTypeDate, r.Hints["date"])
			assert.Equal(t, models.FieldTypeBigInt, r.Hints["app_apple_identifier"])

			byName, ok := LookupReport(r.Name)
			require.True(t, ok)
			byResource, ok := LookupReport(r.Resource)
			require.True(t, ok)
			assert.Same(t, byName, byResource)
		})
	}

	_, ok := LookupReport("App Crashes")
	assert.False(t, ok)
}

func TestReportSchema_Schema(t *testing.T) {
	report, ok := LookupReport("App Store Purchases Detailed")
	require.True(t, ok)

	schema := report.Schema()
	assert.Equal(t, "app-store-purchases-detailed", schema.Name)
	assert.Equal(t, report.PrimaryKey, schema.PrimaryKey)

	for i, column := range report.PrimaryKey {
		assert.Equal(t, column, schema.Fields[i].Name)
		assert.True(t, schema.Fields[i].Required)
	}

	rest := schema.Fields[len(report.PrimaryKey):]
	names := make([]string, len(rest))
	for i, f := range rest {
		names[i] = f.Name
		assert.False(t, f.Required)
	}
	assert.Equal(t, []string{"paying_users", "proceeds_in_usd", "purchases", "sales_in_usd"}, names)

	f, ok := schema.FieldByName("proceeds_in_usd")
	require.True(t, ok)
	assert.Equal(t, models.FieldTypeFloat, f.Type)

	f, ok = schema.FieldByName("content_name")
	require.True(t, ok)
	assert.Equal(t, models.FieldTypeString, f.Type)
}

func TestReportSchema_ApplyHints(t *testing.T) {
	report, ok := LookupReport("App Store Purchases Detailed")
	require.True(t, ok)

	row := Row{
		"app_apple_identifier": "123",
		"purchases":            " 7 ",
		"proceeds_in_usd":      "1.25",
		"sales_in_usd":         "",
		"paying_users":         "n/a",
		"date":                 "2024-01-04",
		"territory":            "US",
		ProcessingDateColumn:   "2024-01-05",
	}
	report.ApplyHints(row)

	assert.Equal(t, int64(123), row["app_apple_identifier"])
	assert.Equal(t, int64(7), row["purchases"])
	assert.Equal(t, 1.25, row["proceeds_in_usd"])
	assert.Nil(t, row["sales_in_usd"])
	assert.Equal(t, "n/a", row["paying_users"])
	assert.Equal(t, "2024-01-04", row["date"])
	assert.Equal(t, "US", row["territory"])
	assert.Equal(t, "2024-01-05", row[ProcessingDateColumn])
}
