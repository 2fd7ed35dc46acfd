package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
)

// Exporter mirrors the monthly budget-vs-expenses table into one Google
// Sheet. The sheet is a read-only view; it is cleared and rewritten on
// every export.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var headerRow = []interface{}{"Period", "Category", "Budgeted Amount", "Actual Expenses", "Difference", "Over Budget"}

// NewExporter creates a Sheets exporter using service-account credentials.
func NewExporter(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*Exporter, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if sheetName == "" {
		return nil, errors.New("missing sheet name")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsFile(credentialsFile),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// Export rewrites the sheet with the given reconciliation rows.
func (e *Exporter) Export(ctx context.Context, rows []core.ReconciliationRow) error {
	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, headerRow)
	for _, row := range rows {
		values = append(values, []interface{}{
			row.Period,
			row.Category,
			row.BudgetedAmount.String(),
			row.ActualExpenses.String(),
			row.Difference.String(),
			row.OverBudget,
		})
	}

	_, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, e.sheetName, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %q: %w", e.sheetName, err)
	}

	_, err = e.svc.Spreadsheets.Values.Update(e.spreadsheetID, e.sheetName+"!A1", &gsheet.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %q: %w", e.sheetName, err)
	}

	slog.InfoContext(ctx, "Exported budget report to Google Sheets",
		"sheet", e.sheetName,
		"rows", len(rows))
	return nil
}
