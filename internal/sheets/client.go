package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"stopmap/internal/trajectory"
)

const DefaultBaseURL = "https://sheets.googleapis.com/v4"

// Client reads cell values from the Google Sheets REST API.
type Client struct {
	BaseURL     string
	TokenSource TokenSource
	HTTPClient  *http.Client
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets error %d: %s", e.StatusCode, e.Body)
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SpreadsheetIDFromURL extracts the spreadsheet id from a share URL like
// https://docs.google.com/spreadsheets/d/<id>/edit?usp=sharing.
func SpreadsheetIDFromURL(sheetURL string) (string, error) {
	m := spreadsheetIDPattern.FindStringSubmatch(sheetURL)
	if m == nil {
		return "", fmt.Errorf("no spreadsheet id in url %q", sheetURL)
	}
	return m[1], nil
}

// Values fetches all cell values in the given A1 range and returns them as a
// table whose first row becomes the column names.
func (c *Client) Values(ctx context.Context, spreadsheetID, valueRange string) (trajectory.Table, error) {
	if spreadsheetID == "" {
		return trajectory.Table{}, fmt.Errorf("spreadsheet id required")
	}
	if valueRange == "" {
		valueRange = "A:ZZ"
	}

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return trajectory.Table{}, err
	}
	joined, err := url.JoinPath(u.Path, "/spreadsheets", spreadsheetID, "values", valueRange)
	if err != nil {
		return trajectory.Table{}, err
	}
	u.Path = joined
	params := url.Values{}
	params.Set("majorDimension", "ROWS")
	u.RawQuery = params.Encode()

	logRequest(http.MethodGet, u.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return trajectory.Table{}, err
	}

	if c.TokenSource != nil {
		token, err := c.TokenSource.GetAccessToken(ctx)
		if err != nil {
			return trajectory.Table{}, fmt.Errorf("get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return trajectory.Table{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return trajectory.Table{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return trajectory.Table{}, err
	}
	if len(payload.Values) == 0 {
		return trajectory.Table{}, fmt.Errorf("sheet %s has no rows", spreadsheetID)
	}

	return trajectory.Table{
		Columns: payload.Values[0],
		Rows:    payload.Values[1:],
	}, nil
}
