// Package export renders run reports for analysis outside the engine.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/tripflow/tripflow/pkg/errors"
	"github.com/tripflow/tripflow/pkg/state"
)

// WriteXLSX renders run records to an XLSX workbook with one summary
// sheet, newest run first.
func WriteXLSX(path string, runs []*state.RunRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Runs"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to create report sheet")
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to drop default sheet")
	}

	headers := []string{
		"run_id", "created_at", "input", "mode",
		"target_latency_ms", "base_drop_prob", "seed",
		"window_s", "max_kleene", "final_cap",
		"ingested", "forwarded", "dropped", "malformed",
		"matches", "evicted", "pruned",
		"recall", "p50_ms", "p95_ms", "duration_ms",
	}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "failed to write report header")
		}
	}

	for i, r := range runs {
		values := []interface{}{
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.InputPath, r.Mode,
			r.TargetLatencyMs, r.BaseDropProb, r.Seed,
			r.WindowSeconds, r.MaxKleene, r.FinalCap,
			r.Ingested, r.Forwarded, r.Dropped, r.Malformed,
			r.Matches, r.Evicted, r.Pruned,
			r.Recall, r.P50Ms, r.P95Ms, r.DurationMs,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return errors.Wrap(err, errors.CodeWriteFailed,
					fmt.Sprintf("failed to write report row %d", i+2))
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to save report").
			WithContext("path", path)
	}
	return nil
}
