package httpadapter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/xuri/excelize/v2"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

const exportSheet = "Predictions"

var exportColumns = []string{
	"ID", "Filename", "Status", "Label", "Confidence",
	"Crackle", "Wheeze", "Both", "None",
	"Notes", "Created At", "Updated At",
}

// exportPredictions serves the recent records as an XLSX workbook, one row
// per record with the class probabilities broken out into columns.
func (rt *Router) exportPredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}

	recs, err := rt.reader.ListRecent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	book, err := buildPredictionWorkbook(recs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "build spreadsheet: " + err.Error()})
		return
	}
	defer book.Close()

	if rt.metrics != nil {
		rt.metrics.RecordExport(metricsService)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="predictions.xlsx"`)
	if err := book.Write(w); err != nil {
		slog.Error("write spreadsheet export", "error", err)
	}
}

func buildPredictionWorkbook(recs []domain.Prediction) (*excelize.File, error) {
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	for col, title := range exportColumns {
		if err := setCell(book, col+1, 1, title); err != nil {
			return nil, err
		}
	}

	for row, rec := range recs {
		values := []any{
			rec.ID,
			rec.Filename,
			string(rec.Status),
			string(rec.Label),
			floatOrBlank(rec.Confidence),
			probabilityOrBlank(rec, domain.LabelCrackle),
			probabilityOrBlank(rec, domain.LabelWheeze),
			probabilityOrBlank(rec, domain.LabelBoth),
			probabilityOrBlank(rec, domain.LabelNone),
			rec.Notes,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		}
		for col, value := range values {
			if err := setCell(book, col+1, row+2, value); err != nil {
				return nil, err
			}
		}
	}

	return book, nil
}

func setCell(book *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return book.SetCellValue(exportSheet, cell, value)
}

func floatOrBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func probabilityOrBlank(rec domain.Prediction, label domain.Label) any {
	if rec.Probabilities == nil {
		return ""
	}
	return rec.Probabilities[label]
}
