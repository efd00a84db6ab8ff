package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MicroDaWay/bilidash/internal/importer"
)

// maxSheetSize bounds uploaded spreadsheets.
const maxSheetSize = 20 << 20

// ImportHandler accepts spreadsheet uploads. It registers plain chi
// routes because huma does not handle multipart file uploads well.
type ImportHandler struct {
	importer *importer.Importer
}

// NewImportHandler creates an import handler.
func NewImportHandler(imp *importer.Importer) *ImportHandler {
	return &ImportHandler{importer: imp}
}

// RegisterRoutes registers the upload routes on the router.
func (h *ImportHandler) RegisterRoutes(r *chi.Mux) {
	r.Post("/api/v1/import/outcome", h.ImportOutcomes)
	r.Post("/api/v1/import/salary", h.ImportSalaries)
}

// ImportOutcomes stores the rows of an uploaded expense sheet.
func (h *ImportHandler) ImportOutcomes(w http.ResponseWriter, r *http.Request) {
	h.importSheet(w, r, h.importer.ImportOutcomes)
}

// ImportSalaries stores the rows of an uploaded salary sheet.
func (h *ImportHandler) ImportSalaries(w http.ResponseWriter, r *http.Request) {
	h.importSheet(w, r, h.importer.ImportSalaries)
}

func (h *ImportHandler) importSheet(w http.ResponseWriter, r *http.Request, load func(context.Context, io.Reader) (int, error)) {
	if err := r.ParseMultipartForm(maxSheetSize); err != nil {
		writeJSONError(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, fmt.Sprintf("failed to get file: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	count, err := load(r.Context(), file)
	if err != nil {
		if errors.Is(err, importer.ErrNoRows) {
			writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSONError(w, fmt.Sprintf("import failed: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"imported": count})
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
