package statistics

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// ReportSheet is the worksheet the xlsx export writes to
const ReportSheet = "Statistiche"

// RenderWorkbook writes report as an xlsx workbook: a summary block, then the
// service tally and the visits per kind, each sorted by count then code.
func RenderWorkbook(report *types.StatisticsReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(ReportSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(ReportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	w := &sheetWriter{f: f, sheet: ReportSheet, headerStyle: headerStyle}

	w.header("Ambulatorio", "Anno", "Mese", "Totale accessi")
	w.row(report.Ambulatorio, report.Anno, report.Mese, report.TotaleAccessi)
	w.skip()

	w.header("Prestazione", "Conteggio")
	for _, kv := range sortedCounts(report.Prestazioni) {
		w.row(kv.key, kv.count)
	}
	w.skip()

	w.header("Tipo", "Accessi")
	for _, kv := range sortedCounts(report.AccessiPerTipo) {
		w.row(kv.key, kv.count)
	}

	if w.err != nil {
		return nil, w.err
	}

	if err := f.SetColWidth(ReportSheet, "A", "A", 28); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter appends rows and keeps the first error
type sheetWriter struct {
	f           *excelize.File
	sheet       string
	headerStyle int
	next        int
	err         error
}

func (w *sheetWriter) header(values ...interface{}) {
	w.write(values, true)
}

func (w *sheetWriter) row(values ...interface{}) {
	w.write(values, false)
}

func (w *sheetWriter) skip() {
	w.next++
}

func (w *sheetWriter) write(values []interface{}, header bool) {
	if w.err != nil {
		return
	}
	w.next++

	start, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = fmt.Errorf("failed to convert coordinates: %w", err)
		return
	}
	if err := w.f.SetSheetRow(w.sheet, start, &values); err != nil {
		w.err = fmt.Errorf("failed to write row %d: %w", w.next, err)
		return
	}
	if !header {
		return
	}

	end, err := excelize.CoordinatesToCellName(len(values), w.next)
	if err != nil {
		w.err = fmt.Errorf("failed to convert coordinates: %w", err)
		return
	}
	if err := w.f.SetCellStyle(w.sheet, start, end, w.headerStyle); err != nil {
		w.err = fmt.Errorf("failed to set header style: %w", err)
	}
}

type keyCount struct {
	key   string
	count int
}

func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		out = append(out, keyCount{key: k, count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}
