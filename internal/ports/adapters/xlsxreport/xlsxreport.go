// Package xlsxreport writes a run manifest as a spreadsheet: one sheet for
// stage outcomes and one row per chunk job.
package xlsxreport

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/forPelevin/storyreel/internal/types"
)

const (
	stagesSheet = "Stages"
	jobsSheet   = "Jobs"
)

var (
	stageHeader = []any{"Stage", "Kind", "Outcome", "Split", "Chunks", "Forced", "Fallback"}
	jobHeader   = []any{"Stage", "Chunk", "Boundary", "Size", "Remote ID", "State", "Polls", "Poll errors", "Error"}
)

func Write(path string, m types.Manifest) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", stagesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(jobsSheet); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}

	if err := setRow(f, stagesSheet, 1, stageHeader); err != nil {
		return err
	}
	if err := setRow(f, jobsSheet, 1, jobHeader); err != nil {
		return err
	}

	jobRow := 2
	for i, st := range m.Stages {
		row := []any{st.Name, string(st.Kind), string(st.Outcome), st.Split, st.Chunks, joinInts(st.Forced), joinInts(st.Fallback)}
		if err := setRow(f, stagesSheet, i+2, row); err != nil {
			return err
		}
		for _, j := range st.Jobs {
			row := []any{st.Name, j.Chunk, string(j.Boundary), j.Size, j.RemoteID, string(j.State), j.Polls, j.PollErrors, j.Error}
			if err := setRow(f, jobsSheet, jobRow, row); err != nil {
				return err
			}
			jobRow++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}
