package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/app"
)

// ExportStatsHandler returns an aggregate report as JSON.
func ExportStatsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Export.Stats(r.Context(), queryInt(r, "days", 7))
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

// ExportCSVHandler streams the report as a CSV attachment.
func ExportCSVHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Export.Stats(r.Context(), queryInt(r, "days", 7))
		if err != nil {
			respondServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", attachment("csv"))
		if err := deps.Export.WriteCSV(w, report); err != nil {
			deps.Logger.Error("csv export failed", zap.Error(err))
		}
	}
}

// ExportPDFHandler streams the report as a PDF attachment.
func ExportPDFHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Export.Stats(r.Context(), queryInt(r, "days", 7))
		if err != nil {
			respondServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", attachment("pdf"))
		if err := deps.Export.WritePDF(w, report); err != nil {
			deps.Logger.Error("pdf export failed", zap.Error(err))
		}
	}
}

func attachment(ext string) string {
	return fmt.Sprintf(`attachment; filename="provider-report-%s.%s"`,
		time.Now().UTC().Format("2006-01-02"), ext)
}
