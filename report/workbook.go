package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

const (
	SheetDaily       = "Daily"
	SheetDepartments = "Departments"
	SheetSurge       = "Surge"
)

var dailyHeaders = []string{
	"Day", "Visits", "Alive", "Dead", "Lost", "Ambulance", "Emergency",
	"Blood Work", "X-Ray", "Surgeries", "Surgery Success", "Code Blue",
	"Code Blue Survived", "Surge Patients", "Surge Dead", "Avg Wait", "Max Wait",
}

// Workbook renders r as an xlsx document.
func Workbook(r *Report) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("report was nil")
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetDaily)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err = f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	var rows [][]interface{}
	for _, b := range r.Days {
		rows = append(rows, []interface{}{
			b.Day + 1, b.Visits, b.Alive, b.Dead, b.Lost, b.Ambulance, b.Emergency,
			b.BloodWork, b.XRay, b.Surgeries, b.SurgerySuccess, b.CodeBlue,
			b.CodeBlueSurvived, b.Surge.Patients, b.Surge.Dead, b.Waiting.Average(), int64(b.Waiting.Max),
		})
	}
	t := r.Totals
	rows = append(rows, []interface{}{
		"Total", t.Visits, t.Alive, t.Dead, t.Lost, t.Ambulance, t.Emergency,
		t.BloodWork, t.XRay, t.Surgeries, t.SurgerySuccess, t.CodeBlue,
		t.CodeBlueSurvived, t.Surge.Patients, t.Surge.Dead, t.Waiting.Average(), int64(t.Waiting.Max),
	})
	if err = writeSheet(f, SheetDaily, dailyHeaders, rows, headerStyle); err != nil {
		return nil, err
	}

	if _, err = f.NewSheet(SheetDepartments); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	departments := make([]string, 0, len(t.Departments))
	for name := range t.Departments {
		departments = append(departments, name)
	}
	sort.Strings(departments)
	headers := []string{"Department"}
	for _, b := range r.Days {
		headers = append(headers, fmt.Sprintf("Day %d", b.Day+1))
	}
	headers = append(headers, "Total")
	rows = rows[:0]
	for _, name := range departments {
		row := []interface{}{name}
		for _, b := range r.Days {
			row = append(row, b.Departments[name])
		}
		rows = append(rows, append(row, t.Departments[name]))
	}
	if err = writeSheet(f, SheetDepartments, headers, rows, headerStyle); err != nil {
		return nil, err
	}

	if len(r.Episodes) > 0 {
		if _, err = f.NewSheet(SheetSurge); err != nil {
			return nil, fmt.Errorf("failed to create sheet: %w", err)
		}
		rows = rows[:0]
		for _, e := range r.Episodes {
			for _, loan := range e.Loans {
				rows = append(rows, []interface{}{int64(e.Started), int64(e.Ended), e.Injected, e.Resolved, e.Lost, loan.Pool, loan.Taken, loan.Returned})
			}
			if len(e.Loans) == 0 {
				rows = append(rows, []interface{}{int64(e.Started), int64(e.Ended), e.Injected, e.Resolved, e.Lost})
			}
		}
		if err = writeSheet(f, SheetSurge, []string{"Started", "Ended", "Injected", "Resolved", "Lost", "Pool", "Taken", "Returned"}, rows, headerStyle); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err = f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err = f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err = f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
