package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaflow/crmimport/internal/config"
	"github.com/vendaflow/crmimport/internal/crm"
	"github.com/vendaflow/crmimport/internal/importer"
	"github.com/vendaflow/crmimport/internal/web/middleware"
)

const sampleCSV = "nome,etapa,empresa\n" +
	"Negócio A,Qualificação,Acme\n" +
	"Negócio B,Inexistente,Acme\n" +
	"Negócio C,Qualificação,Acme\n"

// fakeStore is an in-memory crm.Store for handler tests.
type fakeStore struct {
	stages    []crm.Stage
	companies []crm.Company
	contacts  []crm.Contact
	deals     []crm.DealParams
	nextID    int
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) Companies(context.Context) ([]crm.Company, error) { return f.companies, nil }
func (f *fakeStore) Contacts(context.Context) ([]crm.Contact, error)  { return f.contacts, nil }
func (f *fakeStore) Stages(context.Context) ([]crm.Stage, error)      { return f.stages, nil }
func (f *fakeStore) Sellers(context.Context) ([]crm.Seller, error)    { return nil, nil }

func (f *fakeStore) CreateCompany(_ context.Context, p crm.CompanyParams) (string, error) {
	id := f.id("company")
	f.companies = append(f.companies, crm.Company{ID: id, Name: p.Name})
	return id, nil
}

func (f *fakeStore) CreateContact(_ context.Context, p crm.ContactParams) (string, error) {
	id := f.id("contact")
	f.contacts = append(f.contacts, crm.Contact{ID: id, Name: p.Name, Email: p.Email})
	return id, nil
}

func (f *fakeStore) CreateDeal(_ context.Context, p crm.DealParams) (string, error) {
	f.deals = append(f.deals, p)
	return f.id("deal"), nil
}

func testServer(store *fakeStore) *Server {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Import.MaxFileSize = 10 * 1024 * 1024

	svc := importer.NewService(func(uuid.UUID) crm.Store { return store })
	return NewServer(svc, cfg)
}

// uploadRequest builds a multipart POST carrying a CSV file plus extra form
// fields, with a valid tenant header.
func uploadRequest(t *testing.T, url, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.TenantHeader, uuid.New().String())
	return req
}

func mappingJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(importer.ColumnMapping{
		"nome":    importer.FieldDealName,
		"etapa":   importer.FieldDealStage,
		"empresa": importer.FieldCompanyName,
	})
	require.NoError(t, err)
	return string(raw)
}

func TestHandleFields(t *testing.T) {
	srv := testServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var fields []importer.Field
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
	assert.NotEmpty(t, fields)
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := testServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set(middleware.TenantHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyze(t *testing.T) {
	srv := testServer(&fakeStore{})

	req := uploadRequest(t, "/api/imports/analyze", "leads.csv", sampleCSV, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var analysis importer.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, []string{"nome", "etapa", "empresa"}, analysis.Headers)
	assert.True(t, analysis.Complete)
	assert.Equal(t, 3, analysis.RowCount)
}

func TestHandleAnalyze_RejectsNonCSV(t *testing.T) {
	srv := testServer(&fakeStore{})

	req := uploadRequest(t, "/api/imports/analyze", "leads.xlsx", sampleCSV, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FILE001", resp.Code)
}

func TestImportFlow(t *testing.T) {
	store := &fakeStore{stages: []crm.Stage{{ID: "s1", Name: "Qualificação"}}}
	srv := testServer(store)

	req := uploadRequest(t, "/api/imports/", "leads.csv", sampleCSV, map[string]string{
		"mapping": mappingJSON(t),
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	runID := started["run_id"]
	require.NotEmpty(t, runID)

	// Result blocks until the run completes, so no polling is needed.
	req = httptest.NewRequest(http.MethodGet, "/api/imports/"+runID+"/result", nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result importer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 2, result.Outcome.SuccessCount)
	require.Len(t, result.Outcome.Errors, 1)
	assert.Equal(t, 2, result.Outcome.Errors[0].Index)
	assert.Contains(t, result.Outcome.Errors[0].Message, "não encontrada")

	assert.Len(t, store.companies, 1)
	assert.Len(t, store.deals, 2)
}

func TestHandleProgress_SSE(t *testing.T) {
	store := &fakeStore{stages: []crm.Stage{{ID: "s1", Name: "Qualificação"}}}
	srv := testServer(store)

	req := uploadRequest(t, "/api/imports/", "leads.csv", sampleCSV, map[string]string{
		"mapping": mappingJSON(t),
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	// The recorder implements http.Flusher, so the handler streams until the
	// run's progress channel closes.
	req = httptest.NewRequest(http.MethodGet, "/api/imports/"+started["run_id"]+"/progress", nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "retry:")
	assert.Contains(t, body, "data:")
	assert.Contains(t, body, "event: done")
}

func TestHandleFailedCSV(t *testing.T) {
	store := &fakeStore{stages: []crm.Stage{{ID: "s1", Name: "Qualificação"}}}
	srv := testServer(store)

	req := uploadRequest(t, "/api/imports/", "leads.csv", sampleCSV, map[string]string{
		"mapping": mappingJSON(t),
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	req = httptest.NewRequest(http.MethodGet, "/api/imports/"+started["run_id"]+"/failed.csv", nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "failed_rows.csv")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "\ufeff"))
	assert.Contains(t, body, "row,error,data")
	assert.Contains(t, body, "Negócio B")
	assert.Contains(t, body, "Inexistente")
}

func TestHandleStart_IncompleteMapping(t *testing.T) {
	srv := testServer(&fakeStore{stages: []crm.Stage{{ID: "s1", Name: "Qualificação"}}})

	raw, err := json.Marshal(importer.ColumnMapping{"nome": importer.FieldDealName})
	require.NoError(t, err)

	req := uploadRequest(t, "/api/imports/", "leads.csv", sampleCSV, map[string]string{
		"mapping": string(raw),
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MAP001", resp.Code)
}

func TestResultForUnknownRun(t *testing.T) {
	srv := testServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/imports/"+uuid.New().String()+"/result", nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "RUN001", resp.Code)
}

func TestHealthz(t *testing.T) {
	srv := testServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
