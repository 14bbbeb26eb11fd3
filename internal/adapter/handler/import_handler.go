package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/shipstore/internal/adapter/importfile"
	"github.com/rl1809/shipstore/internal/core/service"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Import accepts a multipart upload with the fields file, department_id and
// optionally parent_department_id. ?report=csv or ?report=xlsx returns the
// row report as a download instead of JSON.
func (h *HTTPHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		badRequest(c, "file is required")
		return
	}
	defer file.Close()

	format, err := importfile.FormatFromName(header.Filename)
	if err != nil {
		h.writeError(c, err)
		return
	}
	table, err := importfile.Parse(file, format, h.maxImportRows)
	if err != nil {
		h.writeError(c, err)
		return
	}

	report, err := h.svc.Imports.Import(c.Request.Context(), service.ImportRequest{
		ChildDepartmentID:  c.PostForm("department_id"),
		ParentDepartmentID: c.PostForm("parent_department_id"),
		Rows:               table.Rows,
		RemarkMissing:      table.RemarkMissing,
	})
	if err != nil {
		if report == nil {
			h.writeError(c, err)
			return
		}
		// rows before the failure stay committed; the caller gets both
		status := statusFor(err)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": errorMessage(status, err), "report": report})
		return
	}

	switch c.Query("report") {
	case "csv":
		c.Header("Content-Disposition", `attachment; filename="import_results.csv"`)
		c.Header("Content-Type", contentTypeCSV)
		c.Status(http.StatusOK)
		if err := importfile.WriteReportCSV(c.Writer, report); err != nil {
			_ = c.Error(err)
		}
	case "xlsx":
		c.Header("Content-Disposition", `attachment; filename="import_results.xlsx"`)
		c.Header("Content-Type", contentTypeXLSX)
		c.Status(http.StatusOK)
		if err := importfile.WriteReportXLSX(c.Writer, report); err != nil {
			_ = c.Error(err)
		}
	default:
		c.JSON(http.StatusOK, report)
	}
}
