package render

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"printshop/internal/report"
)

const (
	SheetSummary  = "Summary"
	SheetMachines = "Machines"
	SheetWorkers  = "Workers"
	SheetJobTypes = "Job Types"
	SheetJobs     = "Detailed Jobs"
)

func amount(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

// Excel writes one sheet per view.
func (r *Renderer) Excel(d report.Daily) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6E6"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}
	numFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return nil, err
	}

	w := sheetWriter{f: f, header: bold, money: moneyStyle}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	w.table(SheetSummary, []string{"Metric", "Value"}, nil, [][]any{
		{"Date", d.Date},
		{"Total Jobs", d.Summary.TotalJobs},
		{"Total Revenue", amount(d.Summary.TotalRevenue)},
		{"Active Workers", d.Summary.ActiveWorkers},
		{"Active Machines", d.Summary.ActiveMachines},
	})

	rows := make([][]any, 0, len(d.Machines))
	for _, m := range d.Machines {
		rows = append(rows, []any{m.MachineName, m.MachineType, m.JobCount, amount(m.TotalRevenue)})
	}
	w.table(SheetMachines, []string{"Machine Name", "Machine Type", "Job Count", "Total Revenue"}, []int{4}, rows)

	rows = make([][]any, 0, len(d.Workers))
	for _, wk := range d.Workers {
		rows = append(rows, []any{wk.WorkerName, deref(wk.MachineName), wk.JobCount, amount(wk.TotalRevenue)})
	}
	w.table(SheetWorkers, []string{"Worker Name", "Machine", "Job Count", "Total Revenue"}, []int{4}, rows)

	rows = make([][]any, 0, len(d.JobTypes))
	for _, jt := range d.JobTypes {
		rows = append(rows, []any{jt.JobTypeName, jt.MachineType, jt.Unit, jt.JobCount, amount(jt.TotalRevenue), amount(jt.AverageRevenue)})
	}
	w.table(SheetJobTypes, []string{"Job Type", "Machine Type", "Unit", "Job Count", "Total Revenue", "Average Amount"}, []int{5, 6}, rows)

	rows = make([][]any, 0, len(d.Jobs))
	for _, j := range d.Jobs {
		rows = append(rows, []any{
			j.ID, j.CreatedAt.Format("2006-01-02 15:04:05"), j.Description, deref(j.WorkerName),
			j.MachineName, j.JobTypeName, size(j), amount(j.Rate), amount(j.Amount),
		})
	}
	w.table(SheetJobs, []string{"ID", "Time", "Description", "Worker", "Machine", "Job Type", "Size / Qty", "Rate", "Amount"}, []int{8, 9}, rows)

	if w.err != nil {
		return nil, fmt.Errorf("render excel: %w", w.err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render excel: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter keeps the first error so the table code stays linear.
type sheetWriter struct {
	f      *excelize.File
	header int
	money  int
	err    error
}

func (w *sheetWriter) table(sheet string, header []string, moneyCols []int, rows [][]any) {
	if w.err != nil {
		return
	}
	if idx, _ := w.f.GetSheetIndex(sheet); idx < 0 {
		if _, err := w.f.NewSheet(sheet); err != nil {
			w.err = err
			return
		}
	}

	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := w.f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		w.err = err
		return
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	_ = w.f.SetCellStyle(sheet, "A1", last+"1", w.header)
	_ = w.f.SetColWidth(sheet, "A", last, 18)

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			w.err = err
			return
		}
	}
	if len(rows) == 0 {
		return
	}
	for _, col := range moneyCols {
		name, _ := excelize.ColumnNumberToName(col)
		_ = w.f.SetCellStyle(sheet, fmt.Sprintf("%s2", name), fmt.Sprintf("%s%d", name, len(rows)+1), w.money)
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func size(j report.JobRow) string {
	switch {
	case j.Quantity != nil:
		return fmt.Sprintf("%d pcs", *j.Quantity)
	case j.WidthCm.Valid && j.HeightCm.Valid:
		return fmt.Sprintf("%s x %s cm", j.WidthCm.Decimal.String(), j.HeightCm.Decimal.String())
	default:
		return "-"
	}
}
