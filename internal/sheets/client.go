package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/pipeline"
	"db_sheets_sync/internal/retry"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client writes into the sheets of one spreadsheet document.
type Client struct {
	service       *sheets.Service
	spreadsheetID string
	valueInput    string
	resilience    config.ResilienceConfig

	mu       sync.Mutex
	sheetIDs map[string]int64
}

func NewClient(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service:       service,
		spreadsheetID: spreadsheetID,
		valueInput:    "USER_ENTERED",
		resilience:    config.DefaultResilienceConfig,
		sheetIDs:      map[string]int64{},
	}, nil
}

// CredentialsFromJSON parses service account JSON into a client option
// scoped for spreadsheet access.
func CredentialsFromJSON(ctx context.Context, data []byte) (option.ClientOption, error) {
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return option.WithCredentials(creds), nil
}

// WithValueInput sets how written values are interpreted: USER_ENTERED or RAW.
func (c *Client) WithValueInput(mode string) *Client {
	c.valueInput = mode
	return c
}

func (c *Client) WithResilience(r config.ResilienceConfig) *Client {
	c.resilience = r
	return c
}

// Clear removes all values from sheet, adding the sheet first if the
// document does not have it yet. Formatting is left in place.
func (c *Client) Clear(ctx context.Context, sheet string) error {
	if _, err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	return retry.Do(ctx, c.resilience.SheetWrite, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.Values.Clear(c.spreadsheetID, pipeline.QuoteSheet(sheet), &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to clear sheet: %w", err)
		}
		return nil
	})
}

func (c *Client) Write(ctx context.Context, sheet string, startRow int, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	return c.UpdateRange(ctx, pipeline.RowRange(sheet, startRow, len(rows), width), rows)
}

func (c *Client) UpdateRange(ctx context.Context, range_ string, values [][]interface{}) error {
	valueRange := &sheets.ValueRange{
		Range:  range_,
		Values: values,
	}

	return retry.Do(ctx, c.resilience.SheetWrite, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, range_, valueRange).
			ValueInputOption(c.valueInput).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to update range %s: %w", range_, err)
		}
		return nil
	})
}

// Read returns the first rows rows of sheet as stored, formatted the way the
// sheet displays them.
func (c *Client) Read(ctx context.Context, sheet string, rows int) ([][]any, error) {
	range_ := fmt.Sprintf("%s!1:%d", pipeline.QuoteSheet(sheet), rows)
	return c.ReadRange(ctx, range_)
}

func (c *Client) ReadRange(ctx context.Context, range_ string) ([][]interface{}, error) {
	resp, err := retry.WithRetry(ctx, c.resilience.SheetRead, func(ctx context.Context) (*sheets.ValueRange, error) {
		return c.service.Spreadsheets.Values.Get(c.spreadsheetID, range_).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", range_, err)
	}
	return resp.Values, nil
}

func (c *Client) Format(ctx context.Context, sheet string, region pipeline.Region, style pipeline.Style) error {
	id, err := c.ensureSheet(ctx, sheet)
	if err != nil {
		return err
	}

	format, fields := cellFormat(style)
	if fields == "" {
		return nil
	}

	return c.batchUpdate(ctx, &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          id,
				StartRowIndex:    int64(region.StartRow - 1),
				EndRowIndex:      int64(region.EndRow),
				StartColumnIndex: int64(region.StartCol - 1),
				EndColumnIndex:   int64(region.EndCol),
				ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
			},
			Cell:   &sheets.CellData{UserEnteredFormat: format},
			Fields: "userEnteredFormat(" + fields + ")",
		},
	})
}

func (c *Client) FreezeRows(ctx context.Context, sheet string, rows int) error {
	id, err := c.ensureSheet(ctx, sheet)
	if err != nil {
		return err
	}

	return c.batchUpdate(ctx, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         id,
				GridProperties:  &sheets.GridProperties{FrozenRowCount: int64(rows)},
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "gridProperties.frozenRowCount",
		},
	})
}

func (c *Client) AutoResize(ctx context.Context, sheet string, columns int) error {
	id, err := c.ensureSheet(ctx, sheet)
	if err != nil {
		return err
	}

	return c.batchUpdate(ctx, &sheets.Request{
		AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
			Dimensions: &sheets.DimensionRange{
				SheetId:         id,
				Dimension:       "COLUMNS",
				StartIndex:      0,
				EndIndex:        int64(columns),
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
		},
	})
}

func (c *Client) batchUpdate(ctx context.Context, requests ...*sheets.Request) error {
	rq := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}

	return retry.Do(ctx, c.resilience.SheetWrite, func(ctx context.Context) error {
		if _, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, rq).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to update spreadsheet: %w", err)
		}
		return nil
	})
}

// ensureSheet returns the numeric id of sheet, creating it when missing.
func (c *Client) ensureSheet(ctx context.Context, sheet string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[sheet]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	spreadsheet, err := retry.WithRetry(ctx, c.resilience.SheetRead, func(ctx context.Context) (*sheets.Spreadsheet, error) {
		return c.service.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			c.remember(sheet, s.Properties.SheetId)
			return s.Properties.SheetId, nil
		}
	}

	log.Info().Str("sheet", sheet).Msg("Sheet not found, adding it")
	rq := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: sheet},
			},
		}},
	}
	resp, err := retry.WithRetry(ctx, c.resilience.SheetWrite, func(ctx context.Context) (*sheets.BatchUpdateSpreadsheetResponse, error) {
		return c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, rq).Context(ctx).Do()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add sheet %q: %w", sheet, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("failed to add sheet %q: empty reply", sheet)
	}

	id = resp.Replies[0].AddSheet.Properties.SheetId
	c.remember(sheet, id)
	return id, nil
}

func (c *Client) remember(sheet string, id int64) {
	c.mu.Lock()
	c.sheetIDs[sheet] = id
	c.mu.Unlock()
}

// cellFormat converts style into a Sheets cell format and the field mask
// naming the parts that were set.
func cellFormat(style pipeline.Style) (*sheets.CellFormat, string) {
	format := &sheets.CellFormat{}
	var fields []string

	if style.Background != nil {
		format.BackgroundColor = color(*style.Background)
		fields = append(fields, "backgroundColor")
	}

	text := &sheets.TextFormat{Bold: style.Bold, Italic: style.Italic, FontSize: int64(style.FontSize)}
	if style.Foreground != nil {
		text.ForegroundColor = color(*style.Foreground)
	}
	if style.Bold || style.Italic || style.FontSize > 0 || style.Foreground != nil {
		format.TextFormat = text
		fields = append(fields, "textFormat")
	}

	if style.Align != "" {
		format.HorizontalAlignment = strings.ToUpper(style.Align)
		fields = append(fields, "horizontalAlignment")
	}

	return format, strings.Join(fields, ",")
}

func color(c pipeline.Color) *sheets.Color {
	return &sheets.Color{
		Red:             c.Red,
		Green:           c.Green,
		Blue:            c.Blue,
		ForceSendFields: []string{"Red", "Green", "Blue"},
	}
}
