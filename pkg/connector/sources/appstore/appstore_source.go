// Package appstore implements the App Store Connect analytics reports source.
//
// Each supported report type becomes one output table. For every configured
// app the source finds the ONGOING report request, the named report under
// it and the report instances whose processing date falls inside the
// configured window, then downloads and decodes every segment of those
// instances. Rows are plain column maps stamped with processing_date.
package appstore

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/auth"
	"github.com/ajitpratap0/storepulse/pkg/clients"
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/base"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// ConnectorName is the registry name of the source.
const ConnectorName = "appstore"

// ReportStream is the lazy row stream of one report type.
type ReportStream struct {
	Report *ReportSchema
	Rows   iter.Seq2[Row, error]
}

// Source reads App Store Connect analytics reports.
type Source struct {
	*base.BaseConnector

	config       *config.AppStoreSourceConfig
	reports      []*ReportSchema
	httpClient   *clients.HTTPClient
	orchestrator *Orchestrator
}

// NewSource creates an App Store source. Configuration is validated by Initialize.
func NewSource(name string, _ *config.BaseConfig) (core.Source, error) {
	if name == "" {
		name = ConnectorName
	}
	return &Source{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeSource, "1.0.0"),
	}, nil
}

// Initialize validates configuration, loads the signing key and prepares the
// catalog client.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	sourceCfg, err := config.AppStoreSourceConfigFrom(cfg)
	if err != nil {
		return err
	}
	reports, err := resolveReports(sourceCfg.Reports)
	if err != nil {
		return err
	}

	tokens, err := auth.LoadAppStoreTokenSource(sourceCfg.KeyID, sourceCfg.IssuerID, sourceCfg.KeyPath, sourceCfg.PrivateKey)
	if err != nil {
		return err
	}
	// Fail on a key that cannot sign before any report is requested.
	if _, err := tokens.Token(); err != nil {
		return err
	}

	s.config = sourceCfg
	s.reports = reports
	s.httpClient = clients.NewHTTPClient(clients.HTTPConfigFrom(cfg), s.GetLogger())
	client := NewClient(sourceCfg.BaseURL, s.httpClient, tokens, s.GetLogger())
	s.orchestrator = NewOrchestrator(client,
		WithStagingDir(cfg.Advanced.StagingDir),
		WithStrictRequestSelection(sourceCfg.StrictRequestSelection),
		WithLogger(s.GetLogger()),
	)

	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.Resource
	}
	s.GetLogger().Info("appstore source initialized",
		zap.Strings("app_ids", sourceCfg.AppIDs),
		zap.Strings("reports", names),
		zap.Stringer("window", s.window()))
	return nil
}

// resolveReports maps configured names onto the schema table; an empty list
// selects every report.
func resolveReports(names []string) ([]*ReportSchema, error) {
	if len(names) == 0 {
		out := make([]*ReportSchema, len(Reports))
		for i := range Reports {
			out[i] = &Reports[i]
		}
		return out, nil
	}

	out := make([]*ReportSchema, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		report, ok := LookupReport(name)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported report %q", name)
		}
		if _, dup := seen[report.Name]; dup {
			continue
		}
		seen[report.Name] = struct{}{}
		out = append(out, report)
	}
	return out, nil
}

func (s *Source) window() Window {
	if s.config == nil {
		return Window{}
	}
	return Window{Start: s.config.StartDate, End: s.config.EndDate}
}

// Discover returns one schema per selected report.
func (s *Source) Discover(ctx context.Context) ([]*core.Schema, error) {
	if s.orchestrator == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source is not initialized")
	}
	schemas := make([]*core.Schema, len(s.reports))
	for i, r := range s.reports {
		schemas[i] = r.Schema()
	}
	return schemas, nil
}

// Streams returns one lazy row stream per selected report. Nothing is
// requested until a stream is ranged over.
func (s *Source) Streams(ctx context.Context) ([]ReportStream, error) {
	if s.orchestrator == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source is not initialized")
	}
	streams := make([]ReportStream, len(s.reports))
	for i, r := range s.reports {
		streams[i] = ReportStream{
			Report: r,
			Rows:   s.orchestrator.Stream(ctx, s.config.AppIDs, r.Name, s.window()),
		}
	}
	return streams, nil
}

// Read emits the rows of every selected report in report order, each record
// tagged with its table. The first failure is sent on Errors and ends the
// stream. Cancelling ctx stops production and releases staging state.
func (s *Source) Read(ctx context.Context) (*core.RecordStream, error) {
	streams, err := s.Streams(ctx)
	if err != nil {
		return nil, err
	}

	bufferSize := s.GetConfig().Performance.BufferSize
	recordsChan := make(chan *pool.Record, bufferSize)
	errorsChan := make(chan error, 1)

	go func() {
		defer close(recordsChan)
		defer close(errorsChan)

		if err := s.emit(ctx, streams, recordsChan); err != nil {
			s.UpdateHealth(err)
			errorsChan <- err
			return
		}
		s.UpdateHealth(nil)
	}()

	return &core.RecordStream{Records: recordsChan, Errors: errorsChan}, nil
}

func (s *Source) emit(ctx context.Context, streams []ReportStream, out chan<- *pool.Record) error {
	for _, stream := range streams {
		var emitted int64
		for row, err := range stream.Rows {
			if err != nil {
				return err
			}
			record := s.toRecord(stream.Report, row)
			select {
			case out <- record:
				emitted++
			case <-ctx.Done():
				record.Release()
				return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "read cancelled")
			}
		}
		s.ReportProgress(stream.Report.Resource, emitted)
		s.RecordMetric("rows_"+stream.Report.Resource, float64(emitted))
	}
	return nil
}

func (s *Source) toRecord(report *ReportSchema, row Row) *pool.Record {
	report.ApplyHints(row)
	record := pool.NewRecord(s.Name(), row)
	record.Metadata.Table = report.Resource
	record.SetMetadata("report", report.Name)
	if date, ok := row[ProcessingDateColumn].(string); ok {
		record.SetMetadata(ProcessingDateColumn, date)
	}
	return record
}

// ReadBatch groups the records of Read into batches of at most batchSize.
// A batch never mixes tables.
func (s *Source) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	if batchSize <= 0 {
		batchSize = s.GetConfig().Performance.BatchSize
	}
	stream, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}

	return core.Batch(ctx, stream, batchSize), nil
}

// Close releases the HTTP transport.
func (s *Source) Close(ctx context.Context) error {
	if s.httpClient != nil {
		if err := s.httpClient.Close(); err != nil {
			s.GetLogger().Warn("failed to close http client", zap.Error(err))
		}
	}
	return s.BaseConnector.Close(ctx)
}

// SupportsBatch reports true.
func (s *Source) SupportsBatch() bool { return true }

// Metrics adds transport statistics to the base metrics.
func (s *Source) Metrics() map[string]interface{} {
	out := s.BaseConnector.Metrics()
	if s.httpClient != nil {
		stats := s.httpClient.GetStats()
		out["http_requests"] = stats.TotalRequests
		out["http_failed_requests"] = stats.FailedRequests
		out["http_retries"] = stats.Retries
	}
	if s.config != nil {
		out["app_count"] = len(s.config.AppIDs)
		out["report_count"] = len(s.reports)
		out["window"] = s.window().String()
	}
	return out
}
