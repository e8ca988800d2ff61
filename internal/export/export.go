// Package export writes the inventory table and compression report to an
// Excel workbook.
package export

import (
	"fmt"
	"math"

	"github.com/chmdznr/oldmaps/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	InventorySheet = "Inventory"
	ReportSheet    = "Report"
)

var inventoryHeader = []interface{}{
	"path", "original_size_mb",
	"resized_path", "resized_size_mb", "resized_status",
	"jpeg_path", "jpeg_size_mb", "jpeg_status",
}

// WriteXLSX saves records and their report to path. Derivative columns are
// left blank for stages that did not produce a file.
func WriteXLSX(path string, records []models.FileRecord, report models.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", InventorySheet); err != nil {
		return err
	}
	if err := writeInventory(f, records); err != nil {
		return fmt.Errorf("failed to write inventory sheet: %w", err)
	}

	if _, err := f.NewSheet(ReportSheet); err != nil {
		return err
	}
	if err := writeReport(f, report); err != nil {
		return fmt.Errorf("failed to write report sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeInventory(f *excelize.File, records []models.FileRecord) error {
	if err := f.SetSheetRow(InventorySheet, "A1", &inventoryHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(InventorySheet, "A1", "H1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(InventorySheet, "A", "A", 48); err != nil {
		return err
	}

	for i, r := range records {
		row := []interface{}{r.Path, round(r.SizeMB())}
		row = append(row, derivativeCells(r.Resized)...)
		row = append(row, derivativeCells(r.Reencoded)...)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(InventorySheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func derivativeCells(d models.Derivative) []interface{} {
	status := string(d.Status)
	if d.Status == models.StageNotRun {
		status = "not run"
	}
	if !d.Populated() {
		return []interface{}{d.Path, nil, status}
	}
	return []interface{}{d.Path, round(d.SizeMB()), status}
}

func writeReport(f *excelize.File, r models.Report) error {
	rows := [][]interface{}{
		{"files", r.Files},
		{"original_mb", round(r.OriginalMB)},
		{"resized_files", r.ResizedFiles},
		{"resized_mb", round(r.ResizedMB)},
		{"resize_ratio", ratio(r.ResizeRatio, r.HasResizeRatio)},
		{"reencoded_files", r.ReencodedFiles},
		{"reencoded_mb", round(r.ReencodedMB)},
		{"reencode_ratio", ratio(r.ReencodeRatio, r.HasReencodeRatio)},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ReportSheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return f.SetColWidth(ReportSheet, "A", "A", 18)
}

func ratio(v float64, ok bool) interface{} {
	if !ok {
		return "n/a"
	}
	return round(v)
}

// round keeps two decimals, enough for megabyte figures.
func round(v float64) float64 {
	return math.Round(v*100) / 100
}
