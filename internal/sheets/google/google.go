// Package google exports ledger rows to a Google spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"moneymind/internal/reports"
	ports "moneymind/internal/sheets"
)

var _ ports.RowExporter = (*Client)(nil)

// batchSize bounds the rows sent per Values.Update call.
const batchSize = 500

// Config selects the spreadsheet and the OAuth material used to reach it.
// Inline JSON wins over the file variants.
type Config struct {
	SpreadsheetID string
	SheetName     string
	ClientJSON    string
	ClientFile    string
	TokenJSON     string
	TokenFile     string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// New builds a Sheets client authorized with the stored OAuth token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		return nil, errors.New("missing sheet name")
	}

	httpClient, err := oauthHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service, used to point the client at a fake endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

func oauthHTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	clientJSON, err := readInlineOrFile(cfg.ClientJSON, cfg.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readInlineOrFile(cfg.TokenJSON, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}

	// refreshes reuse the pooled transport
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return oauthCfg.Client(base, &token), nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return b, nil
	default:
		return nil, errors.New("neither inline JSON nor file provided")
	}
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}
}

// ExportRows clears the sheet and writes the header plus rows from A1.
func (c *Client) ExportRows(ctx context.Context, rows []reports.ExportRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:G", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRange, err)
	}

	values := ports.Values(rows)
	for start := 0; start < len(values); start += batchSize {
		end := min(start+batchSize, len(values))
		rng := fmt.Sprintf("%s!A%d", c.sheetName, start+1)
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values[start:end]}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("write rows %d-%d to %s: %w", start+1, end, c.sheetName, err)
		}
		slog.DebugContext(ctx, "Wrote sheet batch", "component", "sheets", "start_row", start+1, "rows", end-start)
	}

	return fmt.Sprintf("%s!A1:G%d", c.sheetName, len(values)), nil
}
