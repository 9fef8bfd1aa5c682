// Package source reads records from the upstream PostgREST-style API.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/models"
)

const maxErrorBody = 4096

// Config holds the reader settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	PageSize   int
	MaxRecords int
	// MaxOffset is the safety ceiling on the pagination offset.
	MaxOffset int
}

// FetchOptions selects what one FetchAll call reads.
type FetchOptions struct {
	Columns         []string
	OrderColumn     string
	WatermarkColumn string
	// Watermark, when set, restricts the read to rows strictly after it.
	Watermark string
	// MaxRecords overrides the client limit when positive.
	MaxRecords int
	// Unbounded reads until the source is exhausted or the offset ceiling is hit.
	Unbounded bool
}

// Reader is the read side of the source API.
type Reader interface {
	FetchAll(ctx context.Context, table string, opts FetchOptions) ([]models.SourceRecord, error)
}

// Client is the HTTP implementation of Reader. It performs no retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pageSize   int
	maxRecords int
	maxOffset  int
	logger     *logging.Logger
}

// New creates a source client.
func New(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 50000
	}
	if cfg.MaxOffset <= 0 {
		cfg.MaxOffset = 1000000
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		pageSize:   cfg.PageSize,
		maxRecords: cfg.MaxRecords,
		maxOffset:  cfg.MaxOffset,
		logger:     logger,
	}
}

// FetchAll pages through table in ascending order of the order column and
// returns every row read. When the read stops on the record limit, trailing
// rows tied with the final watermark are left for the next run so a strict
// greater-than filter cannot skip them.
func (c *Client) FetchAll(ctx context.Context, table string, opts FetchOptions) ([]models.SourceRecord, error) {
	limit := c.maxRecords
	if opts.MaxRecords > 0 {
		limit = opts.MaxRecords
	}
	if opts.Unbounded {
		limit = c.maxOffset
	}

	var (
		records []models.SourceRecord
		offset  int
		limited bool
	)
	for {
		if offset >= c.maxOffset {
			c.logger.WarnContext(ctx, "source offset ceiling reached",
				logging.Table(table), slog.Int("offset", offset))
			break
		}

		size := min(c.pageSize, limit-len(records))
		page, total, err := c.fetchPage(ctx, table, opts, offset, size)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
		offset += len(page)

		if len(records) >= limit {
			records = records[:limit]
			limited = true
			break
		}
		if len(page) < size {
			break
		}
		if total >= 0 && offset >= total {
			break
		}
	}

	if limited && opts.WatermarkColumn != "" && !opts.Unbounded {
		if cut := tieStart(records, opts.WatermarkColumn); cut > 0 {
			records = records[:cut]
		} else {
			var err error
			records, err = c.readTiedGroup(ctx, table, opts, records, offset)
			if err != nil {
				return nil, err
			}
		}
	}

	c.logger.DebugContext(ctx, "source fetch complete",
		logging.Table(table), logging.Records(len(records)), slog.Bool("limited", limited))
	return records, nil
}

// tieStart returns the index of the first record in the trailing run that
// shares the last record's watermark. Zero means every record ties.
func tieStart(records []models.SourceRecord, column string) int {
	if len(records) == 0 {
		return 0
	}
	last, _ := records[len(records)-1].String(column)
	cut := len(records)
	for cut > 0 {
		wm, _ := records[cut-1].String(column)
		if wm != last {
			break
		}
		cut--
	}
	return cut
}

// readTiedGroup keeps paging past the record limit while rows share the
// watermark of a fully tied read, so the committed watermark never splits a
// group. Reading stops at the first differing row or at the offset ceiling.
func (c *Client) readTiedGroup(ctx context.Context, table string, opts FetchOptions, records []models.SourceRecord, offset int) ([]models.SourceRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	tied, _ := records[len(records)-1].String(opts.WatermarkColumn)

	for {
		if offset >= c.maxOffset {
			c.logger.WarnContext(ctx, "tied watermark group exceeds the offset ceiling",
				logging.Table(table), logging.Watermark(tied), slog.Int("offset", offset))
			return records, nil
		}
		size := min(c.pageSize, c.maxOffset-offset)
		page, total, err := c.fetchPage(ctx, table, opts, offset, size)
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			if wm, _ := rec.String(opts.WatermarkColumn); wm != tied {
				c.logger.DebugContext(ctx, "read tied watermark group past the record limit",
					logging.Table(table), logging.Watermark(tied), logging.Records(len(records)))
				return records, nil
			}
			records = append(records, rec)
		}
		offset += len(page)
		if len(page) < size || (total >= 0 && offset >= total) {
			return records, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, table string, opts FetchOptions, offset, size int) ([]models.SourceRecord, int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(table, opts), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("apikey", c.apiKey)
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Range-Unit", "items")
	request.Header.Set("Range", fmt.Sprintf("%d-%d", offset, offset+size-1))
	request.Header.Set("Prefer", "count=exact")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, 0, &FetchError{Table: table, Status: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s response: %w", table, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var page []models.SourceRecord
	if err := dec.Decode(&page); err != nil {
		return nil, 0, &FetchError{Table: table, Body: truncate(string(data)), Err: err}
	}

	return page, parseTotal(resp.Header.Get("Content-Range")), nil
}

func (c *Client) pageURL(table string, opts FetchOptions) string {
	q := url.Values{}
	if len(opts.Columns) > 0 {
		q.Set("select", strings.Join(opts.Columns, ","))
	}
	order := opts.OrderColumn
	if order == "" {
		order = opts.WatermarkColumn
	}
	if order != "" {
		q.Set("order", order+".asc")
	}
	if opts.WatermarkColumn != "" && opts.Watermark != "" {
		q.Set(opts.WatermarkColumn, "gt."+opts.Watermark)
	}
	return c.baseURL + "/rest/v1/" + url.PathEscape(table) + "?" + q.Encode()
}

// parseTotal reads the total from a Content-Range header ("0-99/1234").
// It returns -1 when the total is unknown.
func parseTotal(header string) int {
	i := strings.LastIndexByte(header, '/')
	if i < 0 {
		return -1
	}
	total, err := strconv.Atoi(strings.TrimSpace(header[i+1:]))
	if err != nil {
		return -1
	}
	return total
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
