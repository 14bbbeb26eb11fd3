package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/adapter/storage"
	"github.com/rl1809/shipstore/internal/core/service"
	"github.com/rl1809/shipstore/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	services Services
	metrics  *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), storage.SQLiteOptions{
		Path:        filepath.Join(t.TempDir(), "shipstore.db"),
		LockTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := zap.NewNop()
	m := metrics.New()
	parts := service.NewPartService(store, log)
	svc := Services{
		Departments: service.NewDepartmentService(store, log),
		Parts:       parts,
		Identity:    service.NewIdentityService(store, log),
		Ledger:      service.NewLedgerService(store, nil, 3, log, m),
		Imports:     service.NewImportService(store, parts, 100, log, m),
	}
	h := NewHTTPHandler(svc, m, log, 1<<20, 100)
	return &testServer{router: h.Router(), services: svc, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

// seed creates Engineering / Main Engine Parts and returns the child id.
func (s *testServer) seed(t *testing.T) (parentID, childID string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/departments", DepartmentRequest{Code: "ENG", Name: "Engineering"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create parent: %d %s", w.Code, w.Body.String())
	}
	parentID = decode[DepartmentResponse](t, w).ID

	w = s.do(t, http.MethodPost, "/api/departments", DepartmentRequest{Code: "ENG-ME", Name: "Main Engine Parts", ParentID: parentID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create child: %d %s", w.Code, w.Body.String())
	}
	return parentID, decode[DepartmentResponse](t, w).ID
}

func (s *testServer) addPart(t *testing.T, childID, partNumber, qty string) PartResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/parts", map[string]any{
		"part_number":     partNumber,
		"name":            "Fuel pump " + partNumber,
		"quantity":        qty,
		"min_order_level": "5",
		"department_id":   childID,
		"compartment_no":  "C1",
		"box_no":          "B1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add part: %d %s", w.Code, w.Body.String())
	}
	return decode[PartResponse](t, w)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(headerRequestID) == "" {
		t.Error("expected a request id header")
	}
}

func TestPartLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)

	part := s.addPart(t, childID, "FP-100", "10")
	if part.Barcode != "ENG-M-0001" {
		t.Errorf("expected generated barcode ENG-M-0001, got %s", part.Barcode)
	}

	w := s.do(t, http.MethodGet, "/api/barcodes/eng-m-0001", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: %d %s", w.Code, w.Body.String())
	}
	if got := decode[PartResponse](t, w); got.ID != part.ID {
		t.Errorf("lookup returned %s, want %s", got.ID, part.ID)
	}

	w = s.do(t, http.MethodGet, "/api/barcodes/next?department_id="+childID, nil)
	if got := decode[map[string]string](t, w)["barcode"]; got != "ENG-M-0002" {
		t.Errorf("expected next barcode ENG-M-0002, got %s", got)
	}

	w = s.do(t, http.MethodPut, "/api/parts/"+part.ID, map[string]any{
		"name":           "Fuel pump (rebuilt)",
		"compartment_no": "C2",
		"box_no":         "B7",
		"status":         "Operational",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	if got := decode[PartResponse](t, w); got.BoxNo != "B7" || !got.Quantity.Equal(part.Quantity) {
		t.Errorf("unexpected update result: %+v", got)
	}

	w = s.do(t, http.MethodGet, "/api/parts?department_id="+childID, nil)
	if list := decode[[]PartResponse](t, w); len(list) != 1 || list[0].ChildDepartment != "Main Engine Parts" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestAddPart_DuplicatePartNumber(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)
	s.addPart(t, childID, "FP-100", "1")

	w := s.do(t, http.MethodPost, "/api/parts", map[string]any{
		"part_number":    "FP-100",
		"name":           "Another",
		"quantity":       "1",
		"department_id":  childID,
		"compartment_no": "C1",
		"box_no":         "B1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestAddPart_InvalidDate(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)

	w := s.do(t, http.MethodPost, "/api/parts", map[string]any{
		"part_number":           "FP-1",
		"name":                  "Pump",
		"quantity":              "1",
		"department_id":         childID,
		"compartment_no":        "C1",
		"box_no":                "B1",
		"last_maintenance_date": "yesterday",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRecordTransaction_StatusMapping(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)
	part := s.addPart(t, childID, "FP-100", "3")

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"check out", map[string]any{"part_id": part.ID, "transaction_type": "check_out", "quantity": "2"}, http.StatusCreated},
		{"over draw", map[string]any{"part_id": part.ID, "transaction_type": "check_out", "quantity": "5"}, http.StatusUnprocessableEntity},
		{"zero quantity", map[string]any{"part_id": part.ID, "transaction_type": "check_in", "quantity": "0"}, http.StatusBadRequest},
		{"unstorable quantity", map[string]any{"part_id": part.ID, "transaction_type": "check_in", "quantity": "1e400"}, http.StatusBadRequest},
		{"bad type", map[string]any{"part_id": part.ID, "transaction_type": "transfer", "quantity": "1"}, http.StatusBadRequest},
		{"unknown part", map[string]any{"part_id": "missing", "transaction_type": "check_in", "quantity": "1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/transactions", tt.body)
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	w := s.do(t, http.MethodGet, "/api/parts/"+part.ID, nil)
	if got := decode[PartResponse](t, w); got.Quantity.String() != "1" || !got.LastPiece {
		t.Errorf("expected last piece with quantity 1, got %+v", got)
	}
}

func TestRecordTransaction_Actor(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)
	part := s.addPart(t, childID, "FP-100", "3")

	w := s.do(t, http.MethodPost, "/api/transactions",
		map[string]any{"part_id": part.ID, "transaction_type": "check_in", "quantity": "1.5", "reason": "delivery"},
		headerUser, "chief.engineer", headerRole, "admin")
	if w.Code != http.StatusCreated {
		t.Fatalf("record: %d %s", w.Code, w.Body.String())
	}
	mv := decode[MovementResponse](t, w)
	if mv.Transaction.PerformedBy != "chief.engineer" {
		t.Errorf("expected performed_by chief.engineer, got %q", mv.Transaction.PerformedBy)
	}
	if mv.Balance.String() != "4.5" {
		t.Errorf("expected balance 4.5, got %s", mv.Balance)
	}

	w = s.do(t, http.MethodGet, "/api/transactions?days=7&department_id="+childID, nil)
	if hist := decode[[]TransactionResponse](t, w); len(hist) != 1 || hist[0].PartNumber != "FP-100" {
		t.Errorf("unexpected history: %+v", hist)
	}

	w = s.do(t, http.MethodGet, "/api/parts/"+part.ID+"/reconcile", nil)
	if rec := decode[ReconciliationResponse](t, w); !rec.Balanced || rec.Transactions != 1 {
		t.Errorf("expected balanced ledger, got %+v", rec)
	}
}

func TestHistory_BadDays(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/transactions?days=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non numeric days, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/transactions?days=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative days, got %d", w.Code)
	}
}

func TestDeleteGuards(t *testing.T) {
	s := newTestServer(t)
	parentID, childID := s.seed(t)
	part := s.addPart(t, childID, "FP-100", "3")

	if w := s.do(t, http.MethodDelete, "/api/departments/"+parentID, nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409 deleting parent with children, got %d", w.Code)
	}

	s.do(t, http.MethodPost, "/api/transactions", map[string]any{"part_id": part.ID, "transaction_type": "check_out", "quantity": "1"})
	if w := s.do(t, http.MethodDelete, "/api/parts/"+part.ID, nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409 deleting part with history, got %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/parts/"+part.ID+"?cascade=true", nil); w.Code != http.StatusNoContent {
		t.Errorf("expected 204 on cascade delete, got %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodGet, "/api/parts/"+part.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestValidateBarcode(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/barcodes/validate", BarcodeRequest{Barcode: " abc-d-1234 "})
	got := decode[map[string]any](t, w)
	if got["valid"] != true || got["barcode"] != "ABC-D-1234" || got["unique"] != true {
		t.Errorf("unexpected validation result: %v", got)
	}

	w = s.do(t, http.MethodPost, "/api/barcodes/validate", BarcodeRequest{Barcode: "AB-D-1234"})
	if got := decode[map[string]any](t, w); got["valid"] != false {
		t.Errorf("expected invalid, got %v", got)
	}
}

func TestAlerts(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)
	s.addPart(t, childID, "LOW", "3")
	s.addPart(t, childID, "ONE", "1")
	s.addPart(t, childID, "OK", "50")

	w := s.do(t, http.MethodGet, "/api/alerts/low-stock", nil)
	if low := decode[[]PartResponse](t, w); len(low) != 1 || low[0].PartNumber != "LOW" {
		t.Errorf("unexpected low stock: %+v", low)
	}
	w = s.do(t, http.MethodGet, "/api/alerts/last-piece?department_id="+childID, nil)
	if last := decode[[]PartResponse](t, w); len(last) != 1 || last[0].PartNumber != "ONE" {
		t.Errorf("unexpected last piece: %+v", last)
	}
}

func multipartImport(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &body, mw.FormDataContentType()
}

const importCSV = "Part Number,Name,Quantity,Box No,Compartment Name,Barcode\n" +
	"P-1,Gasket,4,B1,C1,\n" +
	"P-2,Seal,2,B1,C1,bad\n" +
	"P-3,Filter,1,B2,C1,ENG-M-0009\n"

func TestImport_JSONReport(t *testing.T) {
	s := newTestServer(t)
	parentID, childID := s.seed(t)

	body, ct := multipartImport(t, map[string]string{"department_id": childID, "parent_department_id": parentID}, "parts.csv", importCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}
	var report struct {
		Total        int `json:"total"`
		SuccessCount int `json:"success_count"`
		FailedCount  int `json:"failed_count"`
		Results      []struct {
			RowNumber int    `json:"row_number"`
			Barcode   string `json:"barcode"`
			Status    string `json:"status"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Total != 3 || report.SuccessCount != 2 || report.FailedCount != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Results[1].Status != "failed" || report.Results[1].RowNumber != 3 {
		t.Errorf("expected row 3 to fail, got %+v", report.Results[1])
	}
}

func TestImport_CSVReport(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)

	body, ct := multipartImport(t, map[string]string{"department_id": childID}, "parts.csv", importCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/imports?report=csv", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Body.String(), "row_number,") {
		t.Errorf("unexpected report body: %q", w.Body.String())
	}
}

func TestImport_Rejections(t *testing.T) {
	s := newTestServer(t)
	parentID, childID := s.seed(t)

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		content  string
		status   int
	}{
		{"unsupported format", map[string]string{"department_id": childID}, "parts.txt", importCSV, http.StatusBadRequest},
		{"missing columns", map[string]string{"department_id": childID}, "parts.csv", "Name,Quantity\nA,1\n", http.StatusBadRequest},
		{"parent department", map[string]string{"department_id": parentID}, "parts.csv", importCSV, http.StatusBadRequest},
		{"unknown department", map[string]string{"department_id": "nope"}, "parts.csv", importCSV, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartImport(t, tt.fields, tt.filename, tt.content)
			req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	w := s.do(t, http.MethodGet, "/api/parts?department_id="+childID, nil)
	if list := decode[[]PartResponse](t, w); len(list) != 0 {
		t.Errorf("rejected imports must not persist parts, found %d", len(list))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, childID := s.seed(t)
	part := s.addPart(t, childID, "FP-100", "3")
	s.do(t, http.MethodPost, "/api/transactions", map[string]any{"part_id": part.ID, "transaction_type": "check_in", "quantity": "1"})

	w := s.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `shipstore_ledger_movements_total{type="check_in"} 1`) {
		t.Errorf("movement counter missing from metrics output")
	}
}
