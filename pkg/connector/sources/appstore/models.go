package appstore

// AccessTypeOngoing marks the report request that keeps producing instances.
const AccessTypeOngoing = "ONGOING"

// ReportRequest is a standing request for analytics generation for one app.
type ReportRequest struct {
	ID                     string
	AccessType             string
	StoppedDueToInactivity bool
}

// ReportDescriptor identifies one named report produced under a request.
type ReportDescriptor struct {
	ID       string
	Name     string
	Category string
}

// ReportInstance is one dated generation of a report.
type ReportInstance struct {
	ID             string
	Granularity    string
	ProcessingDate string
}

// ReportSegment is one downloadable part of a report instance.
type ReportSegment struct {
	ID          string
	URL         string
	Checksum    string
	SizeInBytes int64
}

// Row is one decoded report line keyed by header column, plus processing_date.
type Row = map[string]interface{}

// JSON:API envelopes returned by the catalog endpoints.

type document[A any] struct {
	Data  []resource[A] `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type resource[A any] struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes A      `json:"attributes"`
}

type reportRequestAttributes struct {
	AccessType             string `json:"accessType"`
	StoppedDueToInactivity bool   `json:"stoppedDueToInactivity"`
}

type reportAttributes struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type instanceAttributes struct {
	Granularity    string `json:"granularity"`
	ProcessingDate string `json:"processingDate"`
}

type segmentAttributes struct {
	Checksum    string `json:"checksum"`
	SizeInBytes int64  `json:"sizeInBytes"`
	URL         string `json:"url"`
}

type errorDocument struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}
