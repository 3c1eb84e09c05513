package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// Page is the paginated envelope some list endpoints return.
type Page struct {
	Data       []schema.Row `json:"data"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
}

// GetTableData fetches up to limit rows of a table. A non-positive limit
// leaves the backend's default in place.
func (c *Client) GetTableData(ctx context.Context, table string, limit int) ([]schema.Row, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.GetRows(ctx, table, params)
}

// GetRows fetches a table with arbitrary query parameters. Paginated
// responses are followed page by page until the limit, when one is given, or
// the last page is reached.
func (c *Client) GetRows(ctx context.Context, table string, params url.Values) ([]schema.Row, error) {
	limit, _ := strconv.Atoi(params.Get("limit"))

	rows, page, err := c.getPage(ctx, table, params)
	if err != nil {
		return nil, err
	}

	for page != nil && page.Page > 0 && page.Page < page.TotalPages && !reached(rows, limit) {
		next := url.Values{}
		for k, v := range params {
			next[k] = v
		}
		next.Set("page", strconv.Itoa(page.Page+1))

		var more []schema.Row
		more, page, err = c.getPage(ctx, table, next)
		if err != nil {
			return nil, err
		}
		if len(more) == 0 {
			break
		}
		rows = append(rows, more...)
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	if page != nil && page.Total > len(rows) && !reached(rows, limit) {
		c.logger.Warn("table listing is incomplete",
			"table", table,
			"received", len(rows),
			"total", page.Total,
		)
	}
	return rows, nil
}

func reached(rows []schema.Row, limit int) bool {
	return limit > 0 && len(rows) >= limit
}

// getPage fetches one list response. The page is nil when the backend
// answered with a bare array.
func (c *Client) getPage(ctx context.Context, table string, params url.Values) ([]schema.Row, *Page, error) {
	path := c.tablePath(table)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var raw json.RawMessage
	if err := c.Get(ctx, path, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", table, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page Page
		if err := decode(trimmed, &page); err == nil {
			if page.Data == nil {
				page.Data = []schema.Row{}
			}
			return page.Data, &page, nil
		}
	}

	rows, err := NormalizeRows(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	return rows, nil, nil
}

// GetTableColumns fetches the column metadata of a table.
func (c *Client) GetTableColumns(ctx context.Context, table string) ([]schema.Column, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, c.tablePath(table, "columns"), &raw); err != nil {
		return nil, fmt.Errorf("failed to load columns of %s: %w", table, err)
	}

	var columns []schema.Column
	if err := unwrapList(raw, &columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns of %s: %w", table, err)
	}
	return columns, nil
}

// InsertTableRow creates a row and returns its id.
func (c *Client) InsertTableRow(ctx context.Context, table string, row schema.Row) (int64, error) {
	var raw json.RawMessage
	if err := c.Post(ctx, c.tablePath(table), row, &raw); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	id, ok := extractID(raw, table+schema.PrimaryKeySuffix)
	if !ok {
		// The row was created; the backend just did not echo its id.
		return 0, nil
	}
	return id, nil
}

// UpdateTableRow replaces the columns present in row on the record with id.
func (c *Client) UpdateTableRow(ctx context.Context, table string, id int64, row schema.Row) error {
	path := c.tablePath(table, strconv.FormatInt(id, 10))
	if err := c.Put(ctx, path, row, nil); err != nil {
		return fmt.Errorf("failed to update %s %d: %w", table, id, err)
	}
	return nil
}

// DeleteTableRow soft-deletes a row; the backend flips its statusid to 0.
func (c *Client) DeleteTableRow(ctx context.Context, table string, id int64) error {
	path := c.tablePath(table, strconv.FormatInt(id, 10))
	if err := c.Delete(ctx, path, nil); err != nil {
		return fmt.Errorf("failed to inactivate %s %d: %w", table, id, err)
	}
	return nil
}

// NormalizeRows accepts either a bare JSON array or an object wrapping the
// array in "data"; anything else yields no rows.
func NormalizeRows(raw json.RawMessage) ([]schema.Row, error) {
	var rows []schema.Row
	if err := unwrapList(raw, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []schema.Row{}
	}
	return rows, nil
}

// unwrapList decodes raw into out when it is an array, or decodes its
// "data" member when it is an object.
func unwrapList(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '[':
		return decode(trimmed, out)
	case '{':
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return err
		}
		data := bytes.TrimSpace(envelope.Data)
		if len(data) == 0 || data[0] != '[' {
			return nil
		}
		return decode(data, out)
	}

	return fmt.Errorf("%w: unexpected list payload", runtime.ErrInvalidRow)
}

// extractID finds the created id in an insert response: {"id": n},
// {"<pk>": n}, an array of created rows or {"data": ...} wrapping either.
func extractID(raw json.RawMessage, pk string) (int64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, false
	}

	switch trimmed[0] {
	case '[':
		var rows []schema.Row
		if err := decode(trimmed, &rows); err != nil || len(rows) == 0 {
			return 0, false
		}
		return idFromRow(rows[0], pk)
	case '{':
		var row schema.Row
		if err := decode(trimmed, &row); err != nil {
			return 0, false
		}
		if id, ok := idFromRow(row, pk); ok {
			return id, true
		}
		if data, ok := row["data"]; ok {
			encoded, err := json.Marshal(data)
			if err != nil {
				return 0, false
			}
			return extractID(encoded, pk)
		}
	}

	return 0, false
}

func idFromRow(row schema.Row, pk string) (int64, bool) {
	if id, ok := row.Int64("id"); ok {
		return id, true
	}
	return row.Int64(pk)
}
