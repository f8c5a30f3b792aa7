// Package report writes and reads the Parquet summary of a run.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/zipfetch/internal/orchestrator"
)

// Status values of Row.Status.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Row is one source of a run.
type Row struct {
	RunID       string   `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source      string   `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status      string   `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind        string   `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Error       *string  `parquet:"name=error, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	MemberCount int32    `parquet:"name=member_count, type=INT32"`
	Members     []string `parquet:"name=members, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REPEATED"`
}

// Rows converts results into report rows, in the order given.
func Rows(runID string, results orchestrator.Results) []Row {
	rows := make([]Row, 0, len(results))
	for _, out := range results {
		row := Row{RunID: runID, Source: out.Source, Kind: out.Kind().String()}
		if out.OK() {
			row.Status = StatusSuccess
			row.MemberCount = int32(len(out.Members))
			row.Members = append([]string{}, out.Members...)
		} else {
			row.Status = StatusFailure
			msg := out.Err.Error()
			row.Error = &msg
		}
		rows = append(rows, row)
	}
	return rows
}

// Write stores results at path as a Snappy-compressed Parquet file.
func Write(path, runID string, results orchestrator.Results) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create report file %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(Row), 1)
	if err != nil {
		return fmt.Errorf("create report writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range Rows(runID, results) {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return fmt.Errorf("write report row %s: %w", row.Source, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish report %s: %w", path, err)
	}
	return nil
}

// Read loads every row of the report at path.
func Read(path string) ([]Row, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	if err != nil {
		return nil, fmt.Errorf("create report reader %s: %w", path, err)
	}
	defer pr.ReadStop()

	rows := make([]Row, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return rows, nil
}

// Display prints rows as a table followed by totals.
func Display(w io.Writer, rows []Row) {
	fmt.Fprintf(w, "%-60s | %-8s | %-14s | %-7s | %s\n", "Source", "Status", "Kind", "Members", "Error")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	failed := 0
	for _, r := range rows {
		msg := ""
		if r.Error != nil {
			msg = *r.Error
			failed++
		}
		fmt.Fprintf(w, "%-60s | %-8s | %-14s | %-7d | %s\n", r.Source, r.Status, r.Kind, r.MemberCount, msg)
	}
	fmt.Fprintf(w, "%d sources, %d succeeded, %d failed\n", len(rows), len(rows)-failed, failed)
}
