// Package render turns a daily report into downloadable documents.
package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"printshop/internal/report"
)

type Renderer struct {
	Title string
	Now   func() time.Time
}

func New(title string) *Renderer {
	if title == "" {
		title = "Daily Report"
	}
	return &Renderer{Title: title, Now: time.Now}
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// PDF lays out the summary, machines and workers on the first page and the
// job type table on the second.
func (r *Renderer) PDF(d report.Daily) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s %s", r.Title, d.Date), true)
	pdf.SetMargins(15, 15, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, tr(r.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "Date: "+d.Date, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 6, "Generated: "+r.Now().Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	section := func(title string) {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}
	line := func(s string) {
		pdf.CellFormat(0, 6, tr(s), "", 1, "L", false, 0, "")
	}

	section("Daily Summary")
	line(fmt.Sprintf("Total Jobs: %d", d.Summary.TotalJobs))
	line("Total Revenue: " + money(d.Summary.TotalRevenue))
	line(fmt.Sprintf("Active Workers: %d", d.Summary.ActiveWorkers))
	line(fmt.Sprintf("Active Machines: %d", d.Summary.ActiveMachines))
	pdf.Ln(4)

	section("Machine Summary")
	for _, m := range d.Machines {
		line(fmt.Sprintf("%s (%s): %d jobs, %s", m.MachineName, m.MachineType, m.JobCount, money(m.TotalRevenue)))
	}
	pdf.Ln(4)

	section("Worker Summary")
	for _, w := range d.Workers {
		machine := "-"
		if w.MachineName != nil {
			machine = *w.MachineName
		}
		line(fmt.Sprintf("%s [%s]: %d jobs, %s", w.WorkerName, machine, w.JobCount, money(w.TotalRevenue)))
	}

	pdf.AddPage()
	section("Job Type Summary")
	header := []string{"Job Type", "Machine Type", "Unit", "Jobs", "Revenue", "Average"}
	widths := []float64{45, 35, 20, 20, 30, 30}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
	for _, jt := range d.JobTypes {
		cells := []string{jt.JobTypeName, jt.MachineType, jt.Unit, fmt.Sprint(jt.JobCount), money(jt.TotalRevenue), money(jt.AverageRevenue)}
		for i, c := range cells {
			align := "L"
			if i >= 3 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, tr(c), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
