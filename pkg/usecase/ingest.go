package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/service/corpus"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

// RecordLoader reads raw records from a source location
type RecordLoader func(ctx context.Context, source string) ([]*model.Record, error)

// IngestUseCase loads review records and indexes them
type IngestUseCase struct {
	builder *corpus.Builder
	load    RecordLoader
}

// NewIngestUseCase creates an IngestUseCase reading sources with LoadRecords
func NewIngestUseCase(builder *corpus.Builder) *IngestUseCase {
	return &IngestUseCase{builder: builder, load: LoadRecords}
}

// Ingest loads the source and indexes its records. With skipMalformed, records that
// fail validation are logged and dropped instead of failing the whole ingest.
func (uc *IngestUseCase) Ingest(ctx context.Context, source string, skipMalformed bool) (*corpus.IngestReport, error) {
	logger := logging.From(ctx)

	records, err := uc.load(ctx, source)
	if err != nil {
		return nil, err
	}

	if skipMalformed {
		kept := records[:0]
		for _, r := range records {
			if err := r.Validate(); err != nil {
				logger.Warn("skipping malformed record", "record_id", r.ID, "error", err.Error())
				continue
			}
			kept = append(kept, r)
		}
		if dropped := len(records) - len(kept); dropped > 0 {
			logger.Warn("malformed records skipped", "count", dropped)
		}
		records = kept
	}

	report, err := uc.builder.Ingest(ctx, records)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to ingest records", goerr.V("source", source))
	}

	logger.Info("ingest completed", "source", source, "records", report.Records, "coarse", report.Coarse, "fine", report.Fine)
	return report, nil
}

// LoadRecords reads gs://bucket/prefix, a directory of CSV files or a single CSV file
func LoadRecords(ctx context.Context, source string) ([]*model.Record, error) {
	if strings.HasPrefix(source, "gs://") {
		bucket, prefix, err := corpus.ParseGCSURL(source)
		if err != nil {
			return nil, err
		}
		return corpus.LoadGCS(ctx, bucket, prefix)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stat source", goerr.V("source", source))
	}
	if info.IsDir() {
		return corpus.LoadCSVDir(source)
	}

	group, err := corpus.GroupFromFilename(source)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Clean(source))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open source", goerr.V("source", source))
	}
	defer func() { _ = f.Close() }()

	return corpus.LoadCSV(f, group)
}
