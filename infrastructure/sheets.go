package infrastructure

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	headerReadRange  = "A1:Z1"
	headerWriteRange = "A1"
)

// SheetsLedger stores ledger rows in Google Sheets. A ledger id is a
// spreadsheet id; rows go to its first sheet.
type SheetsLedger struct {
	svc *sheets.Service
}

// NewSheetsLedger authorizes with credentialsJSON when given, otherwise with
// application default credentials. Extra options are appended last.
func NewSheetsLedger(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*SheetsLedger, error) {
	var all []option.ClientOption
	if len(credentialsJSON) > 0 {
		all = append(all, option.WithCredentialsJSON(credentialsJSON))
	}
	all = append(all, option.WithScopes(sheets.SpreadsheetsScope))
	all = append(all, opts...)

	svc, err := sheets.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsLedger{svc: svc}, nil
}

// EnsureHeader writes headers into the first row when it is empty. Two
// concurrent first writers can both see an empty row; the last write wins.
func (l *SheetsLedger) EnsureHeader(ctx context.Context, ledgerID string, headers []string) error {
	resp, err := l.svc.Spreadsheets.Values.Get(ledgerID, headerReadRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read header row: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(headers)}}
	_, err = l.svc.Spreadsheets.Values.Update(ledgerID, headerWriteRange, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	return nil
}

func (l *SheetsLedger) AppendRow(ctx context.Context, ledgerID string, row []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(row)}}
	_, err := l.svc.Spreadsheets.Values.Append(ledgerID, columnRange(len(row)), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return nil
}

// Ping reads the spreadsheet's id, which fails when the sheet is missing or
// the credentials lack access.
func (l *SheetsLedger) Ping(ctx context.Context, ledgerID string) error {
	if _, err := l.svc.Spreadsheets.Get(ledgerID).Fields("spreadsheetId").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	return nil
}

// columnRange returns the A1 range covering the first n columns, e.g. "A:G".
func columnRange(n int) string {
	if n < 1 {
		n = 1
	}
	return "A:" + columnName(n)
}

func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
