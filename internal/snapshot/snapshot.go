// Package snapshot exports a processor's coverage cache to S3 on demand, as
// an operational backstop: a lost or corrupted metadata table can be
// reseeded from the latest snapshot through an explicit, separate recovery
// path. Snapshots are never consulted by the Interval Processor itself.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/nholding/tsingest/internal/processor"
)

// Row is the JSON-serializable form of one processor.CoverageRow.
type Row struct {
	Params         map[string]any `json:"params"`
	Domain         string         `json:"domain"`
	CollectedItems int            `json:"collected_items"`
	UpdatedBy      string         `json:"updated_by,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty"`
}

// RowsFromCoverage converts a Processor's in-memory coverage rows to their
// JSON-serializable form.
func RowsFromCoverage(covs []processor.CoverageRow) []Row {
	rows := make([]Row, len(covs))
	for i, c := range covs {
		rows[i] = Row{
			Params:         c.Params,
			Domain:         c.Domain.String(),
			CollectedItems: c.CollectedItems,
			UpdatedBy:      c.LastTouchedBy,
			UpdatedAt:      c.LastTouchedAt,
		}
	}
	return rows
}

// Exporter uploads coverage snapshots for one processor to a single S3
// bucket, under "{processor name}/snapshots/{timestamp}.json".
type Exporter struct {
	s3     *s3.Client
	bucket string
	log    *zap.Logger
}

func NewExporter(client *s3.Client, bucket string, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{s3: client, bucket: bucket, log: log}
}

// Export serializes rows to JSON and uploads them under a key stamped with
// takenAt, returning the object key written.
func (e *Exporter) Export(ctx context.Context, processorName string, rows []Row, takenAt time.Time) (string, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("snapshot: marshal coverage: %w", err)
	}

	key := fmt.Sprintf("%s/snapshots/%s.json", processorName, takenAt.UTC().Format(time.RFC3339))

	_, err = e.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &e.bucket,
		Key:    &key,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: put object %s/%s: %w", e.bucket, key, err)
	}

	e.log.Info("exported coverage snapshot",
		zap.String("processor", processorName),
		zap.String("bucket", e.bucket),
		zap.String("key", key),
		zap.Int("rows", len(rows)))

	return key, nil
}

// Fetch downloads and decodes a named snapshot object, for the explicit,
// non-automatic recovery path: an operator who has confirmed the metadata
// table is lost or corrupt reseeds it from the returned rows themselves,
// never as a side effect of normal Collect/Delete traffic.
func (e *Exporter) Fetch(ctx context.Context, key string) ([]Row, error) {
	out, err := e.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &e.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: get object %s/%s: %w", e.bucket, key, err)
	}
	defer out.Body.Close()

	var rows []Row
	if err := json.NewDecoder(out.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s/%s: %w", e.bucket, key, err)
	}
	return rows, nil
}
