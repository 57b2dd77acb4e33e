package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct {
	Sheet string
}

// NewXLSXExporter constructs an XLSX exporter writing to the "Timetable" sheet.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{Sheet: "Timetable"}
}

// Render writes the title and metadata above a styled header row followed by the dataset rows.
func (e *XLSXExporter) Render(data Dataset, doc Document) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	sheet := e.Sheet
	if sheet == "" {
		sheet = defaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(data.Headers))
	if err != nil {
		return nil, fmt.Errorf("column name: %w", err)
	}

	row := 1
	if doc.Title != "" {
		titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
		if err != nil {
			return nil, fmt.Errorf("title style: %w", err)
		}
		if err := f.SetCellValue(sheet, cellName(1, row), doc.Title); err != nil {
			return nil, err
		}
		if err := f.MergeCell(sheet, "A1", fmt.Sprintf("%s1", lastCol)); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheet, "A1", "A1", titleStyle); err != nil {
			return nil, err
		}
		row++
	}
	for _, line := range doc.Meta {
		if err := f.SetCellValue(sheet, cellName(1, row), line); err != nil {
			return nil, err
		}
		row++
	}
	if row > 1 {
		row++
	}

	headerRow := row
	for i, h := range data.Headers {
		if err := f.SetCellValue(sheet, cellName(i+1, row), h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheet, cellName(1, row), cellName(len(data.Headers), row), headerStyle); err != nil {
		return nil, err
	}
	row++

	for _, values := range data.Rows {
		for i, value := range values {
			if err := f.SetCellValue(sheet, cellName(i+1, row), value); err != nil {
				return nil, err
			}
		}
		row++
	}

	for i, width := range columnWidths(data, float64(len(data.Headers))*18) {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: cellName(1, headerRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
