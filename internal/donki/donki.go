// Package donki downloads event catalogs from the NASA DONKI web service
// and flattens them into tables.
package donki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// ErrEmpty is returned when the service has no events for the window.
var ErrEmpty = errors.New("donki: no events")

// EventType describes one DONKI endpoint.
type EventType struct {
	Name string
	Desc string
}

// EventTypes lists the endpoints downloaded by default, in download order.
var EventTypes = []EventType{
	{Name: "CME", Desc: "Coronal Mass Ejection"},
	{Name: "FLR", Desc: "Solar Flare"},
	{Name: "SEP", Desc: "Solar Energetic Particle event"},
	{Name: "HSS", Desc: "High Speed Stream"},
	{Name: "RBE", Desc: "Radiation Belt Enhancement"},
	{Name: "IPS", Desc: "Interplanetary Shock"},
	{Name: "MPC", Desc: "Magnetopause Crossing"},
	{Name: "GST", Desc: "Geomagnetic Storm"},
}

// Client talks to the DONKI API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient returns a client with a per-request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// URL returns the request URL for one event type and date window.
func (c *Client) URL(eventType string, start, end time.Time) string {
	q := url.Values{}
	q.Set("startDate", start.Format(common.DateLayout))
	q.Set("endDate", end.Format(common.DateLayout))
	q.Set("api_key", c.APIKey)
	return fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.BaseURL, "/"), eventType, q.Encode())
}

// Fetch returns the raw JSON body for one event type.
func (c *Client) Fetch(ctx context.Context, eventType string, start, end time.Time) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(eventType, start, end), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return body, nil
}

// Filename returns the CSV name for an event type and window.
func Filename(eventType string, start, end time.Time) string {
	return fmt.Sprintf("DONKI_%s_%s_to_%s.csv", eventType,
		start.Format(common.DateLayout), end.Format(common.DateLayout))
}

// Export fetches one event type and writes its table into every destination
// directory. It returns the number of events written.
func (c *Client) Export(ctx context.Context, eventType string, start, end time.Time, dests []string) (int, error) {
	body, err := c.Fetch(ctx, eventType, start, end)
	if err != nil {
		return 0, err
	}
	t, err := Normalize(body)
	if err != nil {
		return 0, err
	}

	name := Filename(eventType, start, end)
	for _, dir := range dests {
		if err := t.WriteCSV(filepath.Join(dir, name)); err != nil {
			return 0, fmt.Errorf("write %s: %w", dir, err)
		}
	}
	return t.Len(), nil
}

// Normalize flattens a JSON array of event objects into a table. Nested
// objects become dotted column names, arrays are kept as compact JSON text and
// nulls become empty cells. Columns appear in first-seen order.
func Normalize(raw []byte) (*table.Table, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmpty
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmpty
	}

	f := flattener{index: make(map[string]int)}
	records := make([]map[string]string, 0, len(items))
	for i, item := range items {
		rec := make(map[string]string)
		if err := f.object(item, "", rec); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		records = append(records, rec)
	}

	t := table.New(f.columns...)
	for _, rec := range records {
		row := make([]string, len(f.columns))
		for name, v := range rec {
			row[f.index[name]] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

type flattener struct {
	columns []string
	index   map[string]int
}

func (f *flattener) add(name, value string, rec map[string]string) {
	if _, ok := f.index[name]; !ok {
		f.index[name] = len(f.columns)
		f.columns = append(f.columns, name)
	}
	rec[name] = value
}

// object walks one JSON object with a token stream so key order survives.
func (f *flattener) object(raw json.RawMessage, prefix string, rec map[string]string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected key, got %v", tok)
		}

		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		name := prefix + key
		switch v[0] {
		case '{':
			if err := f.object(v, name+".", rec); err != nil {
				return err
			}
		case '[':
			var buf bytes.Buffer
			if err := json.Compact(&buf, v); err != nil {
				return err
			}
			f.add(name, buf.String(), rec)
		case 'n':
			f.add(name, "", rec)
		case '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			f.add(name, s, rec)
		default:
			f.add(name, string(v), rec)
		}
	}
	return nil
}
