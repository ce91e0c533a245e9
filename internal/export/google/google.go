// Package google mirrors committed transactions to a Google Sheets
// spreadsheet, one row per ledger entry. Export is strictly a mirror: the
// database stays authoritative and a failed append only delays the mirror.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tally/internal/core"
)

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name without year; rows land on the year-prefixed sheet
	// (e.g. "2026 Ledger") so exports roll over with the calendar.
	sheetBase string
}

// NewFromEnv creates an Exporter from environment variables.
// Required: SHEETS_SPREADSHEET_ID.
// Credentials: SHEETS_SERVICE_ACCOUNT_JSON, SHEETS_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: SHEETS_LEDGER_SHEET_NAME (default "Ledger").
func NewFromEnv(ctx context.Context) (*Exporter, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("SHEETS_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing SHEETS_SPREADSHEET_ID")
	}

	sheetBase := strings.TrimSpace(os.Getenv("SHEETS_LEDGER_SHEET_NAME"))
	if sheetBase == "" {
		sheetBase = "Ledger"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("SHEETS_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("SHEETS_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set SHEETS_SERVICE_ACCOUNT_JSON, SHEETS_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func yearPrefixedName(base string, year int) string {
	return fmt.Sprintf("%d %s", year, base)
}

// AppendTransaction appends one ledger row to the year-prefixed sheet.
func (e *Exporter) AppendTransaction(ctx context.Context, t core.Transaction) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := yearPrefixedName(e.sheetBase, t.OccurredAt.Year())
	row := []any{
		t.OccurredAt.Truncate().Format("2006-01-02"),
		string(t.Type),
		core.NormalizeCategory(t.Category),
		t.Amount.String(),
		string(t.Method),
		t.Provider,
		t.ID,
	}

	rng := fmt.Sprintf("%s!A:G", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(cctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Transaction exported to sheet",
		"id", t.ID,
		"sheet", sheet,
		"amount_cents", t.Amount.Cents)
	return nil
}
