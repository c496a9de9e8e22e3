// Package report exports run results: a JSON document written through afs to
// any supported storage URL and an Excel workbook with daily and department
// sheets.
package report
