package appstore

import (
	"context"
	"iter"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
	"github.com/ajitpratap0/storepulse/pkg/observability"
)

// errStopped signals that the consumer stopped ranging over the stream.
var errStopped = errors.New(errors.ErrorTypeInternal, "stream stopped by consumer")

// Orchestrator sequences catalog lookups, window filtering, segment staging
// and decoding into lazy row streams.
type Orchestrator struct {
	catalog    Catalog
	downloader *Downloader
	stagingDir string
	strict     bool
	logger     *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithStagingDir places per-instance staging directories under dir instead
// of the system temporary directory.
func WithStagingDir(dir string) OrchestratorOption {
	return func(o *Orchestrator) { o.stagingDir = dir }
}

// WithStrictRequestSelection makes more than one ONGOING report request an
// error instead of a warning.
func WithStrictRequestSelection(strict bool) OrchestratorOption {
	return func(o *Orchestrator) { o.strict = strict }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator over catalog.
func NewOrchestrator(catalog Catalog, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		catalog: catalog,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "report_orchestrator"))
	o.downloader = NewDownloader(catalog, o.logger)
	return o
}

// Stream returns a one-shot lazy sequence of the rows of reportName for every
// app in appIDs, in app order and then in the order the API lists reports,
// instances and segments. A failure is yielded once as a *StreamError and
// ends the sequence. Breaking out of the range loop stops all work and
// removes the staging directory of the instance in flight. Ranging a second
// time yields ErrStreamConsumed.
func (o *Orchestrator) Stream(ctx context.Context, appIDs []string, reportName string, window Window) iter.Seq2[Row, error] {
	var used atomic.Bool
	return func(yield func(Row, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(nil, ErrStreamConsumed)
			return
		}

		for _, appID := range appIDs {
			err := o.streamApp(ctx, appID, reportName, window, yield)
			if err == errStopped {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

func (o *Orchestrator) streamApp(ctx context.Context, appID, reportName string, window Window, yield func(Row, error) bool) (err error) {
	ctx, span := observability.StartSpan(ctx, "appstore.report",
		attribute.String("app_id", appID),
		attribute.String("report", reportName))
	defer func() {
		if err == errStopped {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)
	}()

	log := o.logger.With(zap.String("app_id", appID), zap.String("report", reportName))
	fail := func(instanceID, segmentID string, cause error) error {
		return &StreamError{AppID: appID, ReportName: reportName, InstanceID: instanceID, SegmentID: segmentID, Err: cause}
	}

	log.Debug("discovering report request")
	requests, err := o.catalog.ListReportRequests(ctx, appID)
	if err != nil {
		return fail("", "", err)
	}
	request, err := o.selectRequest(appID, requests, log)
	if err != nil {
		return fail("", "", err)
	}

	log.Debug("discovering report", zap.String("request_id", request.ID))
	reports, err := o.catalog.ListReports(ctx, request.ID, reportName)
	if err != nil {
		return fail("", "", err)
	}
	if len(reports) == 0 {
		return fail("", "", &ReportNotFoundError{RequestID: request.ID, ReportName: reportName})
	}

	for _, report := range reports {
		log.Debug("listing instances", zap.String("report_id", report.ID))
		instances, err := o.catalog.ListReportInstances(ctx, report.ID)
		if err != nil {
			return fail("", "", err)
		}
		instances, err = FilterByWindow(instances, window.Start, window.End)
		if err != nil {
			var malformed *MalformedDateError
			if errors.As(err, &malformed) {
				return fail(malformed.InstanceID, "", err)
			}
			return fail("", "", err)
		}
		if len(instances) == 0 {
			return fail("", "", &NoInstancesInRangeError{ReportID: report.ID, Window: window})
		}

		for _, instance := range instances {
			if err := o.streamInstance(ctx, reportName, instance, yield, log, fail); err != nil {
				return err
			}
		}
	}
	return nil
}

// streamInstance stages and decodes one instance. The staging directory is
// released when it returns, whatever the outcome.
func (o *Orchestrator) streamInstance(
	ctx context.Context,
	reportName string,
	instance ReportInstance,
	yield func(Row, error) bool,
	log *zap.Logger,
	fail func(instanceID, segmentID string, cause error) error,
) (err error) {
	ctx, span := observability.StartSpan(ctx, "appstore.instance",
		attribute.String("instance_id", instance.ID),
		attribute.String("processing_date", instance.ProcessingDate))
	defer func() {
		if err == errStopped {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)
	}()

	if err := ctx.Err(); err != nil {
		return fail(instance.ID, "", errors.Wrap(err, errors.ErrorTypeTimeout, "stream cancelled"))
	}

	segments, err := o.catalog.ListReportSegments(ctx, instance.ID)
	if err != nil {
		return fail(instance.ID, "", err)
	}

	stage, err := NewStage(o.stagingDir)
	if err != nil {
		return fail(instance.ID, "", err)
	}
	defer func() {
		if cerr := stage.Close(); cerr != nil {
			log.Warn("failed to remove staging directory", zap.String("dir", stage.Dir()), zap.Error(cerr))
		}
	}()

	paths, err := o.downloader.Download(ctx, stage, segments)
	if err != nil {
		var dl *SegmentDownloadError
		if errors.As(err, &dl) {
			return fail(instance.ID, dl.SegmentID, err)
		}
		return fail(instance.ID, "", err)
	}
	metrics.SegmentsDownloaded.WithLabelValues(reportName).Add(float64(len(paths)))

	rows := metrics.RowsEmitted.WithLabelValues(reportName)
	var count int64
	for i, path := range paths {
		for row, err := range DecodeFile(path, instance.ProcessingDate) {
			if err != nil {
				return fail(instance.ID, segments[i].ID, err)
			}
			if err := ctx.Err(); err != nil {
				return fail(instance.ID, segments[i].ID, errors.Wrap(err, errors.ErrorTypeTimeout, "stream cancelled"))
			}
			count++
			rows.Inc()
			if !yield(row, nil) {
				log.Debug("consumer stopped", zap.String("instance_id", instance.ID), zap.Int64("rows", count))
				return errStopped
			}
		}
	}

	log.Info("report instance processed",
		zap.String("instance_id", instance.ID),
		zap.String("processing_date", instance.ProcessingDate),
		zap.Int("segments", len(paths)),
		zap.Int64("rows", count))
	return nil
}

// selectRequest picks the authoritative ONGOING request. With several, the
// first one still active wins, falling back to the first listed; strict mode
// rejects the ambiguity instead.
func (o *Orchestrator) selectRequest(appID string, requests []ReportRequest, log *zap.Logger) (ReportRequest, error) {
	var ongoing []ReportRequest
	for _, r := range requests {
		if r.AccessType == AccessTypeOngoing {
			ongoing = append(ongoing, r)
		}
	}

	switch len(ongoing) {
	case 0:
		return ReportRequest{}, &NoOngoingReportRequestError{AppID: appID}
	case 1:
		if ongoing[0].StoppedDueToInactivity {
			log.Warn("ONGOING report request was stopped due to inactivity", zap.String("request_id", ongoing[0].ID))
		}
		return ongoing[0], nil
	}

	ids := make([]string, len(ongoing))
	for i, r := range ongoing {
		ids[i] = r.ID
	}
	if o.strict {
		return ReportRequest{}, &AmbiguousReportRequestError{AppID: appID, RequestIDs: ids}
	}

	chosen := ongoing[0]
	for _, r := range ongoing {
		if !r.StoppedDueToInactivity {
			chosen = r
			break
		}
	}
	log.Warn("multiple ONGOING report requests, choosing one",
		zap.Strings("request_ids", ids),
		zap.String("chosen", chosen.ID))
	return chosen, nil
}
