package appstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// segmentSuffix is appended to staged segment files.
const segmentSuffix = ".csv.gz"

// Stage is a scoped staging directory holding the segments of one instance.
// Close removes it with everything inside and may be called repeatedly.
type Stage struct {
	dir  string
	once sync.Once
	err  error
}

// NewStage creates a fresh staging directory under parent, or under the
// system temporary directory when parent is empty.
func NewStage(parent string) (*Stage, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create staging root")
		}
	}
	dir, err := os.MkdirTemp(parent, "storepulse-instance-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create staging directory")
	}
	return &Stage{dir: dir}, nil
}

// Dir returns the staging directory path.
func (s *Stage) Dir() string {
	return s.dir
}

// Close removes the staging directory.
func (s *Stage) Close() error {
	s.once.Do(func() {
		if err := os.RemoveAll(s.dir); err != nil {
			s.err = errors.Wrap(err, errors.ErrorTypeFile, "failed to remove staging directory")
		}
	})
	return s.err
}

// Downloader streams segments into a Stage in pool.ChunkSize chunks.
type Downloader struct {
	fetcher SegmentFetcher
	logger  *zap.Logger
}

// NewDownloader creates a segment downloader.
func NewDownloader(fetcher SegmentFetcher, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher: fetcher,
		logger:  logger.With(zap.String("component", "segment_downloader")),
	}
}

// Download stages every segment and returns the file paths in segment order.
// The first failure aborts the remaining downloads.
func (d *Downloader) Download(ctx context.Context, stage *Stage, segments []ReportSegment) ([]string, error) {
	paths := make([]string, 0, len(segments))
	for _, segment := range segments {
		path := filepath.Join(stage.Dir(), segmentFileName(segment))
		n, err := d.downloadOne(ctx, segment, path)
		if err != nil {
			return nil, &SegmentDownloadError{SegmentID: segment.ID, URL: segment.URL, Cause: err}
		}
		metrics.SegmentBytes.Add(float64(n))
		d.logger.Debug("segment staged",
			zap.String("segment_id", segment.ID),
			zap.Int64("bytes", n))
		paths = append(paths, path)
	}
	return paths, nil
}

func (d *Downloader) downloadOne(ctx context.Context, segment ReportSegment, path string) (int64, error) {
	if segment.URL == "" {
		return 0, errors.New(errors.ErrorTypeData, "segment has no download url")
	}
	body, err := d.fetcher.FetchSegment(ctx, segment.URL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to create segment file")
	}

	n, copyErr := copyChunked(f, body)
	if closeErr := f.Close(); copyErr == nil && closeErr != nil {
		copyErr = errors.Wrap(closeErr, errors.ErrorTypeFile, "failed to flush segment file")
	}
	return n, copyErr
}

// copyChunked copies src to dst through one pooled fixed-size buffer so
// memory stays bounded whatever the segment size.
func copyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := pool.GetChunk()
	defer pool.PutChunk(buf)

	var written int64
	for {
		n, readErr := src.Read(*buf)
		if n > 0 {
			if _, err := dst.Write((*buf)[:n]); err != nil {
				return written, errors.Wrap(err, errors.ErrorTypeFile, "failed to write segment chunk")
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, errors.Wrap(readErr, errors.ErrorTypeConnection, "failed to read segment body")
		}
	}
}

// segmentFileName names a staged file after the segment checksum, falling
// back to the segment id when the checksum is unusable as a file name.
func segmentFileName(segment ReportSegment) string {
	name := segment.Checksum
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		name = segment.ID
	}
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	return name + segmentSuffix
}
