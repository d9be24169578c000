package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportHandler writes the owner's payment history as CSV or XLSX.
type ExportHandler struct {
	Ledger *ledger.Service
	Units  Units
}

func NewExportHandler(svc *ledger.Service, units Units) *ExportHandler {
	return &ExportHandler{Ledger: svc, Units: units}
}

var exportHeaders = []string{"Date", "Property", "Room", "Tenant", "Rent", "Saved", "Forwarded", "Reference"}

func (h *ExportHandler) rows(entries []ledger.OwnerEntry) [][]string {
	rows := make([][]string, 0, len(entries)+1)
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatUint(e.PropertyID, 10),
			e.RoomLabel,
			e.Tenant,
			h.Units.format(e.Amount),
			h.Units.format(e.SavedForOwner),
			h.Units.format(e.OwnerPortion),
			e.Reference,
		})
	}
	t := ledger.Summarize(ledger.PaymentsOf(entries))
	rows = append(rows, []string{
		"TOTAL", "", "", strconv.Itoa(t.Payments) + " payments",
		h.Units.format(t.Paid), h.Units.format(t.Saved), h.Units.format(t.Forwarded), h.Units.Symbol,
	})
	return rows
}

// load fetches the owner view, writing the error response on failure.
func (h *ExportHandler) load(c *gin.Context) ([]ledger.OwnerEntry, bool) {
	user, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	entries, err := h.Ledger.OwnerView(c.Request.Context(), user.Address)
	if err != nil {
		ledgerError(c, err)
		return nil, false
	}
	return entries, true
}

func (h *ExportHandler) ExportCSV(c *gin.Context) {
	entries, ok := h.load(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"payments_%s.csv\"",
		time.Now().Format("20060102")))

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeaders)
	_ = w.WriteAll(h.rows(entries))
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}

func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	entries, ok := h.load(c)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Payments"
	index, err := f.NewSheet(sheet)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create sheet")
		return
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	all := append([][]string{exportHeaders}, h.rows(entries)...)
	for r, row := range all {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+1)
			if err != nil {
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "export failed")
				return
			}
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 22)
	_ = f.SetColWidth(sheet, "C", "C", 18)
	_ = f.SetColWidth(sheet, "D", "D", 44)
	_ = f.SetColWidth(sheet, "E", "G", 14)
	_ = f.SetColWidth(sheet, "H", "H", 68)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"payments_%s.xlsx\"",
		time.Now().Format("20060102")))

	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
