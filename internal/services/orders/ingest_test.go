package orders

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes rows into a fresh sheet and returns the xlsx bytes
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"Monthly Invoice Report"},
		{},
		{"NO", "CUSTOMER", "INVOICE NUMBER", "DESTINATION", "FORWARDER", "QTY", "AMOUNT", "ETA", "VIA"},
		{1, "Acme Pty", "INV1001", "Sydney", "FastFreight", 10, 2500.50, "2026-03-01", "Sea"},
		{2, "Globex", "INV1002", "Perth", "AirCo", 3, 990, "2026-03-05", "Air"},
	})

	items, err := ParseWorkbook(data)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "INV1001", items[0].InvoiceNumber)
	assert.Equal(t, "Acme Pty", items[0].Customer)
	assert.Equal(t, "Sydney", items[0].Destination)
	assert.InDelta(t, 2500.50, items[0].Amount, 0.001)
	assert.Equal(t, 1, items[0].No)
	assert.Equal(t, "INV1002", items[1].InvoiceNumber)
}

func TestParseWorkbookSkipsHyphenatedAndEmptyInvoices(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"NO", "CUSTOMER", "INVOICE NUMBER"},
		{1, "Acme", "INV1001"},
		{2, "Acme", "INV-1002"}, // credit/adjustment row
		{3, "Acme", ""},
		{4, "Acme", "INV1004"},
	})

	items, err := ParseWorkbook(data)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "INV1001", items[0].InvoiceNumber)
	assert.Equal(t, "INV1004", items[1].InvoiceNumber)
}

func TestParseWorkbookColumnOrderIndependent(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"INVOICE NUMBER", "QTY", "CUSTOMER"},
		{"INV2001", 7, "Initech"},
	})

	items, err := ParseWorkbook(data)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "INV2001", items[0].InvoiceNumber)
	assert.Equal(t, "Initech", items[0].Customer)
	assert.InDelta(t, 7, items[0].Qty, 0.001)
	// Missing NO column falls back to the running count
	assert.Equal(t, 1, items[0].No)
}

func TestParseWorkbookNoHeader(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"just", "some", "cells"},
		{"no", "header", "here"},
	})

	_, err := ParseWorkbook(data)
	assert.Error(t, err)
}

func TestParseWorkbookRejectsGarbage(t *testing.T) {
	_, err := ParseWorkbook([]byte("not a zip container"))
	assert.Error(t, err)
}
