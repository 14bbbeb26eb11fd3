package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/adapter/importfile"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/core/service"
	"github.com/rl1809/shipstore/internal/metrics"
)

const defaultMaxUploadSize = 10 << 20

// Services groups the application services exposed over HTTP.
type Services struct {
	Departments *service.DepartmentService
	Parts       *service.PartService
	Identity    *service.IdentityService
	Ledger      *service.LedgerService
	Imports     *service.ImportService
}

type HTTPHandler struct {
	svc           Services
	metrics       *metrics.Metrics
	logger        *zap.Logger
	maxUploadSize int64
	maxImportRows int
}

// NewHTTPHandler builds the handler. maxUploadSize bounds an import upload in
// bytes and maxImportRows the rows read from it; zero picks the defaults.
func NewHTTPHandler(svc Services, m *metrics.Metrics, logger *zap.Logger, maxUploadSize int64, maxImportRows int) *HTTPHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &HTTPHandler{
		svc:           svc,
		metrics:       m,
		logger:        logger,
		maxUploadSize: maxUploadSize,
		maxImportRows: maxImportRows,
	}
}

func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(h.logger), Actor())

	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")
	{
		depts := api.Group("/departments")
		depts.POST("", h.CreateDepartment)
		depts.GET("", h.ListDepartments)
		depts.GET("/:id", h.GetDepartment)
		depts.GET("/:id/children", h.ListChildren)
		depts.GET("/:id/path", h.DepartmentPath)
		depts.PUT("/:id", h.UpdateDepartment)
		depts.DELETE("/:id", h.DeleteDepartment)

		parts := api.Group("/parts")
		parts.POST("", h.AddPart)
		parts.GET("", h.ListParts)
		parts.GET("/:id", h.GetPart)
		parts.PUT("/:id", h.UpdatePart)
		parts.DELETE("/:id", h.DeletePart)
		parts.GET("/:id/transactions", h.PartHistory)
		parts.GET("/:id/reconcile", h.Reconcile)

		alerts := api.Group("/alerts")
		alerts.GET("/low-stock", h.LowStock)
		alerts.GET("/last-piece", h.LastPiece)

		barcodes := api.Group("/barcodes")
		barcodes.GET("/next", h.NextBarcode)
		barcodes.POST("/validate", h.ValidateBarcode)
		barcodes.GET("/:code", h.LookupBarcode)

		txns := api.Group("/transactions")
		txns.POST("", h.RecordTransaction)
		txns.GET("", h.History)

		api.POST("/imports", h.Import)
	}
	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps a service error onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, importfile.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrReferential), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": errorMessage(status, err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (h *HTTPHandler) CreateDepartment(c *gin.Context) {
	var req DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	dept, err := h.svc.Departments.Create(c.Request.Context(), service.NewDepartment{
		Code:     req.Code,
		Name:     req.Name,
		ParentID: req.ParentID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newDepartmentResponse(*dept))
}

// ListDepartments lists every department, or only the parents with
// ?parents=true.
func (h *HTTPHandler) ListDepartments(c *gin.Context) {
	var (
		depts []domain.Department
		err   error
	)
	if c.Query("parents") == "true" {
		depts, err = h.svc.Departments.Parents(c.Request.Context())
	} else {
		depts, err = h.svc.Departments.List(c.Request.Context())
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDepartmentList(depts))
}

func (h *HTTPHandler) GetDepartment(c *gin.Context) {
	dept, err := h.svc.Departments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDepartmentResponse(*dept))
}

func (h *HTTPHandler) ListChildren(c *gin.Context) {
	depts, err := h.svc.Departments.Children(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDepartmentList(depts))
}

func (h *HTTPHandler) DepartmentPath(c *gin.Context) {
	path, err := h.svc.Departments.Path(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"parent": newDepartmentResponse(path.Parent),
		"child":  newDepartmentResponse(path.Child),
	})
}

func (h *HTTPHandler) UpdateDepartment(c *gin.Context) {
	var req DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	dept, err := h.svc.Departments.Update(c.Request.Context(), c.Param("id"), service.DepartmentUpdate{
		Code:     req.Code,
		Name:     req.Name,
		ParentID: req.ParentID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDepartmentResponse(*dept))
}

func (h *HTTPHandler) DeleteDepartment(c *gin.Context) {
	if err := h.svc.Departments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) AddPart(c *gin.Context) {
	var req PartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	in, err := req.toNewPart()
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	id, err := h.svc.Parts.Add(ctx, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	part, err := h.svc.Parts.Get(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPartResponse(*part))
}

func (h *HTTPHandler) ListParts(c *gin.Context) {
	deptID := c.Query("department_id")
	if deptID == "" {
		badRequest(c, "department_id is required")
		return
	}
	parts, err := h.svc.Parts.ListByDepartment(c.Request.Context(), deptID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartViewList(parts))
}

func (h *HTTPHandler) GetPart(c *gin.Context) {
	part, err := h.svc.Parts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartResponse(*part))
}

func (h *HTTPHandler) UpdatePart(c *gin.Context) {
	var req PartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.svc.Parts.Update(ctx, id, upd); err != nil {
		h.writeError(c, err)
		return
	}
	part, err := h.svc.Parts.Get(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartResponse(*part))
}

func (h *HTTPHandler) DeletePart(c *gin.Context) {
	cascade := c.Query("cascade") == "true"
	if err := h.svc.Parts.Delete(c.Request.Context(), c.Param("id"), cascade); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) PartHistory(c *gin.Context) {
	txns, err := h.svc.Ledger.PartHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionList(txns))
}

func (h *HTTPHandler) Reconcile(c *gin.Context) {
	rec, err := h.svc.Ledger.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReconciliationResponse(rec))
}

func (h *HTTPHandler) LowStock(c *gin.Context) {
	parts, err := h.svc.Parts.LowStock(c.Request.Context(), c.Query("department_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartViewList(parts))
}

func (h *HTTPHandler) LastPiece(c *gin.Context) {
	parts, err := h.svc.Parts.LastPiece(c.Request.Context(), c.Query("department_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartViewList(parts))
}

// LookupBarcode serves the scanner: the code is cleaned before the search.
func (h *HTTPHandler) LookupBarcode(c *gin.Context) {
	part, err := h.svc.Parts.GetByBarcode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartResponse(*part))
}

func (h *HTTPHandler) ValidateBarcode(c *gin.Context) {
	var req BarcodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	code, err := h.svc.Identity.Validate(req.Barcode)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	unique, err := h.svc.Identity.IsUnique(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "barcode": code, "unique": unique})
}

func (h *HTTPHandler) NextBarcode(c *gin.Context) {
	deptID := c.Query("department_id")
	if deptID == "" {
		badRequest(c, "department_id is required")
		return
	}
	code, err := h.svc.Identity.NextBarcode(c.Request.Context(), deptID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"barcode": code})
}

func (h *HTTPHandler) RecordTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	mv, err := h.svc.Ledger.RecordTransaction(c.Request.Context(), req.toService())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MovementResponse{
		Transaction: newTransactionResponse(mv.Transaction),
		Balance:     mv.Balance,
	})
}

func (h *HTTPHandler) History(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "days must be an integer")
			return
		}
		days = n
	}
	views, err := h.svc.Ledger.History(c.Request.Context(), days, c.Query("department_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHistoryList(views))
}
