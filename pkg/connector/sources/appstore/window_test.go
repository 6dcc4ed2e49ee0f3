package appstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

func date(t *testing.T, s string) *time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return &d
}

func sampleInstances() []ReportInstance {
	return []ReportInstance{
		{ID: "i-5", ProcessingDate: "2024-01-05"},
		{ID: "i-1", ProcessingDate: "2024-01-01"},
		{ID: "i-3", ProcessingDate: "2024-01-03"},
		{ID: "i-7", ProcessingDate: "2024-01-07T00:00:00Z"},
	}
}

func TestFilterByWindow(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  []string
	}{
		{"no bounds", "", "", []string{"i-5", "i-1", "i-3", "i-7"}},
		{"start only", "2024-01-03", "", []string{"i-5", "i-3", "i-7"}},
		{"end only", "", "2024-01-03", []string{"i-1", "i-3"}},
		{"inclusive both", "2024-01-03", "2024-01-05", []string{"i-5", "i-3"}},
		{"single day", "2024-01-01", "2024-01-01", []string{"i-1"}},
		{"after all", "2024-02-01", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var start, end *time.Time
			if tt.start != "" {
				start = date(t, tt.start)
			}
			if tt.end != "" {
				end = date(t, tt.end)
			}

			got, err := FilterByWindow(sampleInstances(), start, end)
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, inst := range got {
				ids = append(ids, inst.ID)
			}
			assert.Equal(t, tt.want, ids)

			again, err := FilterByWindow(got, start, end)
			require.NoError(t, err)
			assert.Equal(t, got, again, "filtering is idempotent")
		})
	}
}

func TestFilterByWindow_BoundsAreSoundAndComplete(t *testing.T) {
	input := sampleInstances()
	start, end := date(t, "2024-01-02"), date(t, "2024-01-06")

	got, err := FilterByWindow(input, start, end)
	require.NoError(t, err)

	kept := make(map[string]bool)
	for _, inst := range got {
		kept[inst.ID] = true
	}
	for _, inst := range input {
		d, err := ParseProcessingDate(inst)
		require.NoError(t, err)
		inside := !d.Before(*start) && !d.After(*end)
		assert.Equal(t, inside, kept[inst.ID], inst.ID)
	}
}

func TestFilterByWindow_ReturnsIndependentCopy(t *testing.T) {
	input := sampleInstances()

	got, err := FilterByWindow(input, nil, nil)
	require.NoError(t, err)
	require.Equal(t, input, got)

	got[0].ID = "changed"
	assert.Equal(t, "i-5", input[0].ID)
}

func TestFilterByWindow_MalformedDate(t *testing.T) {
	input := []ReportInstance{{ID: "ok", ProcessingDate: "2024-01-01"}, {ID: "bad", ProcessingDate: "01/02/2024"}}

	_, err := FilterByWindow(input, date(t, "2024-01-01"), nil)
	require.Error(t, err)

	var malformed *MalformedDateError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "bad", malformed.InstanceID)
	assert.Equal(t, "01/02/2024", malformed.Value)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	_, err = FilterByWindow(input, nil, nil)
	assert.NoError(t, err, "no bounds means no parsing")
}
