package appstore

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// ErrStreamConsumed is yielded when a report stream is ranged over a second time.
var ErrStreamConsumed = errors.New(errors.ErrorTypeValidation, "report stream already consumed")

// RemoteRequestError reports a non-2xx response from the reporting API.
type RemoteRequestError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *RemoteRequestError) Error() string {
	return fmt.Sprintf("reporting API returned %d for %s: %s", e.StatusCode, e.URL, e.Message)
}

// Type maps the HTTP status onto the framework error categories.
func (e *RemoteRequestError) Type() errors.ErrorType {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return errors.ErrorTypeAuthentication
	case e.StatusCode == http.StatusNotFound:
		return errors.ErrorTypeNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return errors.ErrorTypeRateLimit
	default:
		return errors.ErrorTypeRemote
	}
}

// NoOngoingReportRequestError means the app has no ONGOING report request.
type NoOngoingReportRequestError struct {
	AppID string
}

func (e *NoOngoingReportRequestError) Error() string {
	return fmt.Sprintf("no ONGOING report request found for app %s", e.AppID)
}

func (e *NoOngoingReportRequestError) Type() errors.ErrorType { return errors.ErrorTypeNotFound }

// AmbiguousReportRequestError is returned in strict selection mode when an
// app has more than one ONGOING report request.
type AmbiguousReportRequestError struct {
	AppID      string
	RequestIDs []string
}

func (e *AmbiguousReportRequestError) Error() string {
	return fmt.Sprintf("app %s has %d ONGOING report requests: %s",
		e.AppID, len(e.RequestIDs), strings.Join(e.RequestIDs, ", "))
}

func (e *AmbiguousReportRequestError) Type() errors.ErrorType { return errors.ErrorTypeConflict }

// ReportNotFoundError means no report with the requested name exists under the request.
type ReportNotFoundError struct {
	RequestID  string
	ReportName string
}

func (e *ReportNotFoundError) Error() string {
	return fmt.Sprintf("no such report found: %q (request %s)", e.ReportName, e.RequestID)
}

func (e *ReportNotFoundError) Type() errors.ErrorType { return errors.ErrorTypeNotFound }

// NoInstancesInRangeError means no instance of a report falls inside the window.
type NoInstancesInRangeError struct {
	ReportID string
	Window   Window
}

func (e *NoInstancesInRangeError) Error() string {
	return fmt.Sprintf("no report instances found for report %s in range %s", e.ReportID, e.Window)
}

func (e *NoInstancesInRangeError) Type() errors.ErrorType { return errors.ErrorTypeNotFound }

// MalformedDateError means an instance carries an unparseable processing date.
type MalformedDateError struct {
	InstanceID string
	Value      string
	Cause      error
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("instance %s has malformed processing date %q", e.InstanceID, e.Value)
}

func (e *MalformedDateError) Unwrap() error { return e.Cause }

func (e *MalformedDateError) Type() errors.ErrorType { return errors.ErrorTypeData }

// SegmentDownloadError reports a failure while staging one segment.
type SegmentDownloadError struct {
	SegmentID string
	URL       string
	Cause     error
}

func (e *SegmentDownloadError) Error() string {
	return fmt.Sprintf("failed to download segment %s: %v", e.SegmentID, e.Cause)
}

func (e *SegmentDownloadError) Unwrap() error { return e.Cause }

// Type reports the category of the underlying failure, defaulting to connection.
func (e *SegmentDownloadError) Type() errors.ErrorType {
	if t := errors.TypeOf(e.Cause); t != "" {
		return t
	}
	return errors.ErrorTypeConnection
}

// TabularDecodeError reports a segment file that is not a well-formed
// gzip-compressed tab-delimited table.
type TabularDecodeError struct {
	Path   string
	Line   int
	Reason string
	Cause  error
}

func (e *TabularDecodeError) Error() string {
	msg := "failed to decode " + e.Path
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TabularDecodeError) Unwrap() error { return e.Cause }

func (e *TabularDecodeError) Type() errors.ErrorType { return errors.ErrorTypeData }

// StreamError terminates a report stream and carries where it failed.
type StreamError struct {
	AppID      string
	ReportName string
	InstanceID string
	SegmentID  string
	Err        error
}

func (e *StreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "app %s report %q", e.AppID, e.ReportName)
	if e.InstanceID != "" {
		b.WriteString(" instance " + e.InstanceID)
	}
	if e.SegmentID != "" {
		b.WriteString(" segment " + e.SegmentID)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StreamError) Unwrap() error { return e.Err }

func (e *StreamError) Type() errors.ErrorType {
	if t := errors.TypeOf(e.Err); t != "" {
		return t
	}
	return errors.ErrorTypeInternal
}

// Window is an optional inclusive processing-date range.
type Window struct {
	Start *time.Time
	End   *time.Time
}

func (w Window) String() string {
	format := func(t *time.Time) string {
		if t == nil {
			return "*"
		}
		return t.Format(config.DateLayout)
	}
	return "[" + format(w.Start) + ", " + format(w.End) + "]"
}
