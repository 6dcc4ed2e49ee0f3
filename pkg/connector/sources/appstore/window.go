package appstore

import (
	"time"

	"github.com/ajitpratap0/storepulse/pkg/config"
)

// ParseProcessingDate parses an instance processing date, either a calendar
// date or an RFC 3339 timestamp.
func ParseProcessingDate(instance ReportInstance) (time.Time, error) {
	t, err := config.ParseDate(instance.ProcessingDate)
	if err != nil || t == nil {
		return time.Time{}, &MalformedDateError{
			InstanceID: instance.ID,
			Value:      instance.ProcessingDate,
			Cause:      err,
		}
	}
	return *t, nil
}

// FilterByWindow returns the instances whose processing date lies inside the
// inclusive window. The result never shares its backing array with the
// input, and with both bounds unset it is an element-wise copy.
func FilterByWindow(instances []ReportInstance, start, end *time.Time) ([]ReportInstance, error) {
	out := make([]ReportInstance, 0, len(instances))
	for _, instance := range instances {
		if start == nil && end == nil {
			out = append(out, instance)
			continue
		}
		date, err := ParseProcessingDate(instance)
		if err != nil {
			return nil, err
		}
		if start != nil && date.Before(*start) {
			continue
		}
		if end != nil && date.After(*end) {
			continue
		}
		out = append(out, instance)
	}
	return out, nil
}
