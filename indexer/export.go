package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportBatch = 1000

type paymentRow struct {
	ID             string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payer          string `parquet:"name=payer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Restaurant     string `parquet:"name=restaurant, type=BYTE_ARRAY, convertedtype=UTF8"`
	OriginalAmount string `parquet:"name=original_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	AdjustedAmount string `parquet:"name=adjusted_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	CustomRatio    string `parquet:"name=custom_ratio, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp      int64  `parquet:"name=timestamp, type=INT64"`
	IndexedAt      string `parquet:"name=indexed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportPayments writes every indexed payment, oldest first, to a snappy
// compressed parquet file at path and returns the row count.
func (i *Indexer) ExportPayments(ctx context.Context, path string) (int, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("indexer: export dir: %w", err)
		}
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(paymentRow), 1)
	if err != nil {
		fw.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	err = func() error {
		for offset := 0; ; offset += exportBatch {
			var batch []Payment
			if err := i.db.WithContext(ctx).
				Order("timestamp ASC").Order("created_at ASC").Order("id ASC").
				Limit(exportBatch).Offset(offset).
				Find(&batch).Error; err != nil {
				return err
			}
			for _, p := range batch {
				row := &paymentRow{
					ID:             p.ID.String(),
					Payer:          p.Payer,
					Restaurant:     p.Restaurant,
					OriginalAmount: p.OriginalAmount,
					AdjustedAmount: p.AdjustedAmount,
					CustomRatio:    p.CustomRatio,
					Timestamp:      p.Timestamp,
					IndexedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
				}
				if err := pw.Write(row); err != nil {
					return err
				}
				written++
			}
			if len(batch) < exportBatch {
				return nil
			}
		}
	}()
	if err != nil {
		pw.WriteStop()
		fw.Close()
		return 0, fmt.Errorf("indexer: parquet write: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return 0, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := fw.Close(); err != nil {
		return 0, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}
