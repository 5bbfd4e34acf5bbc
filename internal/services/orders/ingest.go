// -----------------------------------------------------------------------
// Workbook Ingestion - Parses uploaded invoice spreadsheets into line items
// -----------------------------------------------------------------------

package orders

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/traho/internal/models"
)

// headerScanLimit bounds how deep we look for the header row. Real uploads
// carry title rows and blank padding above the table.
const headerScanLimit = 20

// invoiceHeaderCell identifies the header row
const invoiceHeaderCell = "INVOICE NUMBER"

// ParseWorkbook extracts invoice line items from an xlsx upload.
//
// The header row is located by scanning the first rows for an
// "INVOICE NUMBER" cell; columns are then mapped by header name so column
// order in the upload does not matter. Rows with an empty invoice number
// are skipped, as are hyphenated invoice numbers (credit/adjustment rows
// the export screen cannot process).
func ParseWorkbook(data []byte) ([]models.LineItem, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	headerIdx, columns := findHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no %q header found in the first %d rows", invoiceHeaderCell, headerScanLimit)
	}

	var items []models.LineItem
	for _, row := range rows[headerIdx+1:] {
		invoice := strings.TrimSpace(cell(row, colOf(columns, invoiceHeaderCell)))
		if invoice == "" {
			continue
		}
		if strings.Contains(invoice, "-") {
			continue
		}

		item := models.LineItem{
			No:            parseInt(cell(row, colOf(columns, "NO"))),
			Customer:      strings.TrimSpace(cell(row, colOf(columns, "CUSTOMER"))),
			InvoiceNumber: invoice,
			Destination:   strings.TrimSpace(cell(row, colOf(columns, "DESTINATION"))),
			Forwarder:     strings.TrimSpace(cell(row, colOf(columns, "FORWARDER"))),
			Qty:           parseFloat(cell(row, colOf(columns, "QTY"))),
			Amount:        parseFloat(cell(row, colOf(columns, "AMOUNT"))),
			ETA:           strings.TrimSpace(cell(row, colOf(columns, "ETA"))),
			Via:           strings.TrimSpace(cell(row, colOf(columns, "VIA"))),
			Status:        models.ItemStatusPending,
		}
		if item.No == 0 {
			item.No = len(items) + 1
		}
		items = append(items, item)
	}

	return items, nil
}

// findHeader returns the header row index and a map of normalized header
// name to column index, or -1 when no header row is present.
func findHeader(rows [][]string) (int, map[string]int) {
	limit := headerScanLimit
	if len(rows) < limit {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		columns := make(map[string]int)
		found := false
		for col, raw := range rows[i] {
			name := strings.ToUpper(strings.TrimSpace(raw))
			if name == "" {
				continue
			}
			columns[name] = col
			if name == invoiceHeaderCell {
				found = true
			}
		}
		if found {
			return i, columns
		}
	}
	return -1, nil
}

// colOf returns the mapped column index, or -1 when the header is absent
func colOf(columns map[string]int, name string) int {
	if col, ok := columns[name]; ok {
		return col
	}
	return -1
}

// cell returns the column value, tolerating ragged rows
func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		return int(v)
	}
	return 0
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		return v
	}
	return 0
}
