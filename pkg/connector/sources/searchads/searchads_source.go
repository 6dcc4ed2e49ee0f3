// Package searchads implements the search ads reporting source.
//
// Two fixed daily reports are supported. For every configured customer the
// source runs the report query page by page and flattens each result into a
// row with the report's column mapping.
package searchads

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/auth"
	"github.com/ajitpratap0/storepulse/pkg/clients"
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/base"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// ConnectorName is the registry name of the source.
const ConnectorName = "searchads"

// Row is one flattened search result.
type Row = map[string]interface{}

// Source reads search ads reports.
type Source struct {
	*base.BaseConnector

	config     *config.SearchAdsSourceConfig
	reports    []*Report
	httpClient *clients.HTTPClient
	searcher   Searcher
}

// NewSource creates a search ads source. Configuration is validated by Initialize.
func NewSource(name string, _ *config.BaseConfig) (core.Source, error) {
	if name == "" {
		name = ConnectorName
	}
	return &Source{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeSource, "1.0.0"),
	}, nil
}

// Initialize validates configuration and prepares the OAuth2 token flow.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	sourceCfg, err := config.SearchAdsSourceConfigFrom(cfg)
	if err != nil {
		return err
	}
	reports, err := resolveReports(sourceCfg.Reports)
	if err != nil {
		return err
	}

	s.config = sourceCfg
	s.reports = reports
	s.httpClient = clients.NewHTTPClient(clients.HTTPConfigFrom(cfg), s.GetLogger())

	// The token flow outlives Initialize, so it must not inherit ctx.
	tokens := auth.NewRefreshTokenSource(context.Background(),
		sourceCfg.ClientID, sourceCfg.ClientSecret, sourceCfg.TokenURL, sourceCfg.RefreshToken, nil)
	s.searcher = NewClient(sourceCfg.BaseURL, sourceCfg.DeveloperToken, sourceCfg.LoginCustomerID,
		s.httpClient, tokens, s.GetLogger())

	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.Name
	}
	s.GetLogger().Info("searchads source initialized",
		zap.Strings("customer_ids", sourceCfg.CustomerIDs),
		zap.Strings("reports", names))
	return nil
}

func resolveReports(names []string) ([]*Report, error) {
	if len(names) == 0 {
		out := make([]*Report, len(Reports))
		for i := range Reports {
			out[i] = &Reports[i]
		}
		return out, nil
	}
	out := make([]*Report, 0, len(names))
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

// Discover returns one schema per selected report.
func (s *Source) Discover(ctx context.Context) ([]*core.Schema, error) {
	if s.searcher == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source is not initialized")
	}
	schemas := make([]*core.Schema, len(s.reports))
	for i, r := range s.reports {
		schemas[i] = r.Schema()
	}
	return schemas, nil
}

// Rows streams one report across every configured customer. Pages are
// requested lazily as the consumer advances.
func (s *Source) Rows(ctx context.Context, report *Report) iter.Seq2[Row, error] {
	query := report.Query(s.config.StartDate, s.config.EndDate)
	return func(yield func(Row, error) bool) {
		for _, customerID := range s.config.CustomerIDs {
			for pageToken, first := "", true; first || pageToken != ""; first = false {
				if err := ctx.Err(); err != nil {
					yield(nil, errors.Wrap(err, errors.ErrorTypeTimeout, "read cancelled"))
					return
				}
				page, err := s.searcher.Search(ctx, customerID, query, pageToken)
				if err != nil {
					yield(nil, fmt.Errorf("report %s, customer %s: %w", report.Name, customerID, err))
					return
				}
				for _, result := range page.Results {
					row, err := report.Project(result)
					if err != nil {
						yield(nil, errors.Wrap(err, errors.ErrorTypeData, "failed to project "+report.Name+" result"))
						return
					}
					if !yield(row, nil) {
						return
					}
				}
				pageToken = page.NextPageToken
			}
		}
	}
}

// Read emits the rows of every selected report in report order. The first
// failure is sent on Errors and ends the stream.
func (s *Source) Read(ctx context.Context) (*core.RecordStream, error) {
	if s.searcher == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source is not initialized")
	}

	recordsChan := make(chan *pool.Record, s.GetConfig().Performance.BufferSize)
	errorsChan := make(chan error, 1)

	go func() {
		defer close(recordsChan)
		defer close(errorsChan)

		if err := s.emit(ctx, recordsChan); err != nil {
			s.UpdateHealth(err)
			errorsChan <- err
			return
		}
		s.UpdateHealth(nil)
	}()

	return &core.RecordStream{Records: recordsChan, Errors: errorsChan}, nil
}

func (s *Source) emit(ctx context.Context, out chan<- *pool.Record) error {
	for _, report := range s.reports {
		start := time.Now()
		var emitted int64
		for row, err := range s.Rows(ctx, report) {
			if err != nil {
				return err
			}
			record := pool.NewRecord(s.Name(), row)
			record.Metadata.Table = report.Name
			record.SetMetadata("report", report.Name)
			if date, ok := row["date"].(string); ok && date != "" {
				record.SetMetadata("processing_date", date)
			}
			select {
			case out <- record:
				emitted++
				metrics.RowsEmitted.WithLabelValues(report.Name).Inc()
			case <-ctx.Done():
				record.Release()
				return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "read cancelled")
			}
		}
		s.ReportProgress(report.Name, emitted)
		s.RecordMetric("rows_"+report.Name, float64(emitted))
		s.GetLogger().Info("report complete",
			zap.String("report", report.Name),
			zap.Int64("rows", emitted),
			zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

// ReadBatch groups the records of Read into batches that never mix tables.
func (s *Source) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	stream, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = s.GetConfig().Performance.BatchSize
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
		out["customer_count"] = len(s.config.CustomerIDs)
		out["report_count"] = len(s.reports)
	}
	return out
}
