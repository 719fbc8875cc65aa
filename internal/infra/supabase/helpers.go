package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST and query building
// ============================================================

// doPost inserts data into table. prefer is sent as the Prefer header; it
// always includes return=representation.
func (c *Client) doPost(ctx context.Context, table string, data any, prefer ...string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", joinPrefer(append([]string{"return=representation"}, prefer...)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: POST request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: POST non-2xx",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("supabase POST %s returned %d: %s", table, resp.StatusCode, string(body))
	}

	c.logger.Debug("supabase: POST OK", zap.String("table", table), zap.Int("status", resp.StatusCode))
	return body, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinPrefer(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// eq builds a PostgREST equality filter with the value escaped.
func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

// timeFilter renders the created_at bounds of a range, or "".
func timeFilter(column string, from, to time.Time) string {
	out := ""
	if !from.IsZero() {
		out += "&" + column + "=gte." + url.QueryEscape(from.UTC().Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		out += "&" + column + "=lt." + url.QueryEscape(to.UTC().Format(time.RFC3339Nano))
	}
	return out
}

func isEmpty(body []byte) bool {
	return len(body) == 0 || string(body) == "[]"
}
