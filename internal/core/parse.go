package core

// parse.go consumes a row source (CSV or XLSX) and folds it through an
// Aggregator. Rows are processed strictly in source order; the only
// suspension points are reads from the source itself. First-wins and
// last-wins semantics depend on that ordering, so row ingestion is never
// parallelized.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// contextCheckInterval is how many rows to process between cancellation checks.
var contextCheckInterval = 100

// ErrEmptySource reports a source with no header row.
var ErrEmptySource = errors.New("source contains no header row")

// ErrUnsupportedFormat reports a file extension the parser cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseCSV streams CSV rows from r through a fresh Aggregator and returns
// the finished batch.
//
// Per-row problems are recovered into the batch's Errors; they never fail
// the parse. A source-level failure (I/O error, cancelled context, missing
// header) returns a non-nil error together with the partial batch
// accumulated so far. There is no rollback.
func ParseCSV(ctx context.Context, r io.Reader, norm *Normalizer) (*Batch, error) {
	agg := NewAggregator(norm)

	src := wrapRowSource(r)
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return agg.Finish(), ErrEmptySource
	}
	if err != nil {
		return agg.Finish(), fmt.Errorf("read header: %w", err)
	}
	columns := cleanHeader(header)

	rowIndex := 0
	for {
		if rowIndex%contextCheckInterval == 0 && ctx.Err() != nil {
			return agg.Finish(), fmt.Errorf("parse cancelled: %w", ctx.Err())
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return agg.Finish(), fmt.Errorf("read row %d: %w", rowIndex+1, err)
		}

		rowIndex++
		agg.Ingest(makeRow(columns, record), rowIndex)
	}

	batch := agg.Finish()
	slog.Debug("csv parse complete",
		"bytes", src.bytesRead,
		"summary", agg.Summary(),
	)
	return batch, nil
}

// ParseXLSX streams rows from the first sheet of an xlsx workbook through a
// fresh Aggregator. Failure semantics match ParseCSV.
func ParseXLSX(ctx context.Context, r io.Reader, norm *Normalizer) (*Batch, error) {
	agg := NewAggregator(norm)

	f, err := excelize.OpenReader(r)
	if err != nil {
		return agg.Finish(), fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return agg.Finish(), ErrEmptySource
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return agg.Finish(), fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Error(); err != nil {
			return agg.Finish(), fmt.Errorf("read header: %w", err)
		}
		return agg.Finish(), ErrEmptySource
	}
	header, err := rows.Columns()
	if err != nil {
		return agg.Finish(), fmt.Errorf("read header: %w", err)
	}
	columns := cleanHeader(header)

	rowIndex := 0
	for rows.Next() {
		if rowIndex%contextCheckInterval == 0 && ctx.Err() != nil {
			return agg.Finish(), fmt.Errorf("parse cancelled: %w", ctx.Err())
		}

		record, err := rows.Columns()
		if err != nil {
			return agg.Finish(), fmt.Errorf("read row %d: %w", rowIndex+1, err)
		}

		rowIndex++
		agg.Ingest(makeRow(columns, record), rowIndex)
	}
	if err := rows.Error(); err != nil {
		return agg.Finish(), fmt.Errorf("read rows: %w", err)
	}

	batch := agg.Finish()
	slog.Debug("xlsx parse complete", "sheet", sheets[0], "summary", agg.Summary())
	return batch, nil
}

// Parse dispatches on the file name extension: .csv or .xlsx.
func Parse(ctx context.Context, r io.Reader, fileName string, norm *Normalizer) (*Batch, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return ParseCSV(ctx, r, norm)
	case ".xlsx":
		return ParseXLSX(ctx, r, norm)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// cleanHeader strips export artifacts from header cells.
func cleanHeader(header []string) []string {
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = CleanCell(h)
	}
	return columns
}

// makeRow zips a record with the header into a RawRow. Short records leave
// trailing columns absent; extra cells beyond the header are dropped.
func makeRow(columns []string, record []string) RawRow {
	row := make(RawRow, len(columns))
	for i, col := range columns {
		if col == "" || i >= len(record) {
			continue
		}
		row[col] = CleanCell(record[i])
	}
	return row
}
