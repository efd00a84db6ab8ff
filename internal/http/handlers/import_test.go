package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MicroDaWay/bilidash/internal/importer"
	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/repository"
)

func setupImportRouter(t *testing.T) (*chi.Mux, repository.SalaryRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Outcome{}, &models.Salary{}))

	outcomes := repository.NewOutcomeRepository(db)
	salaries := repository.NewSalaryRepository(db)

	router := chi.NewRouter()
	NewImportHandler(importer.New(outcomes, salaries, nil)).RegisterRoutes(router)
	return router, salaries
}

func salarySheet(t *testing.T) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetList()[0]

	rows := [][]any{
		{"年份", "月份", "工资", "工时", "时薪"},
		{2025, 1, 8000, 160, 50},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func multipartUpload(t *testing.T, url string, content *bytes.Buffer) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "sheet.xlsx")
	require.NoError(t, err)
	_, err = part.Write(content.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestImportHandler_Salary(t *testing.T) {
	router, salaries := setupImportRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "/api/v1/import/salary", salarySheet(t)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"imported":1`)

	found, err := salaries.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestImportHandler_MissingFile(t *testing.T) {
	router, _ := setupImportRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/outcome", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportHandler_NotASpreadsheet(t *testing.T) {
	router, _ := setupImportRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "/api/v1/import/salary", bytes.NewBufferString("not xlsx")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
