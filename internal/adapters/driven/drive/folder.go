package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SourceFolder = (*Folder)(nil)

const (
	// DefaultBaseURL is the Drive v3 REST endpoint
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	// ScopeReadonly is the only scope the poller and extractor need
	ScopeReadonly = "https://www.googleapis.com/auth/drive.readonly"

	defaultPageSize = 200
	listFields      = "files(id,name,mimeType,createdTime,parents),nextPageToken"
)

// Config configures the Drive folder adapter.
type Config struct {
	BaseURL string
	// TokenSource authorizes requests. Nil means unauthenticated, which only
	// works against test servers.
	TokenSource oauth2.TokenSource
	PageSize    int
	Timeout     time.Duration
	RetryMax    int
	Logger      *slog.Logger
}

// Folder lists and downloads files in Google Drive folders, shared drives
// included.
type Folder struct {
	baseURL  string
	pageSize int
	client   *retryablehttp.Client
	logger   *slog.Logger
}

// NewWithDefaultCredentials builds a Folder authorized by Application
// Default Credentials with read-only Drive scope.
func NewWithDefaultCredentials(ctx context.Context, cfg Config) (*Folder, error) {
	ts, err := google.DefaultTokenSource(ctx, ScopeReadonly)
	if err != nil {
		return nil, fmt.Errorf("drive credentials: %w", err)
	}
	cfg.TokenSource = ts
	return New(cfg), nil
}

// New creates a Drive folder adapter.
func New(cfg Config) *Folder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.Logger = logger
	if cfg.TokenSource != nil {
		client.HTTPClient = oauth2.NewClient(context.Background(), cfg.TokenSource)
	}
	client.HTTPClient.Timeout = timeout

	return &Folder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		client:   client,
		logger:   logger,
	}
}

// ListSince pages through files.list ordered by createdTime. Trashed files
// are excluded.
func (f *Folder) ListSince(ctx context.Context, folderID string, since time.Time) ([]domain.DiscoveredItem, error) {
	if folderID == "" {
		return nil, fmt.Errorf("%w: folder id is required", domain.ErrInvalidInput)
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false and createdTime > '%s'",
		escapeQuery(folderID), since.UTC().Format(time.RFC3339))

	var items []domain.DiscoveredItem
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", query)
		params.Set("orderBy", "createdTime")
		params.Set("pageSize", fmt.Sprint(f.pageSize))
		params.Set("fields", listFields)
		params.Set("supportsAllDrives", "true")
		params.Set("includeItemsFromAllDrives", "true")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := f.get(ctx, "/files?"+params.Encode())
		if err != nil {
			return nil, err
		}

		for _, file := range gjson.GetBytes(body, "files").Array() {
			created, err := time.Parse(time.RFC3339Nano, file.Get("createdTime").String())
			if err != nil {
				f.logger.Warn("skipping file with bad createdTime",
					"file_id", file.Get("id").String(), "error", err)
				continue
			}
			items = append(items, domain.DiscoveredItem{
				ID:        file.Get("id").String(),
				Name:      file.Get("name").String(),
				MimeType:  file.Get("mimeType").String(),
				CreatedAt: created,
				FolderID:  folderID,
			})
		}

		pageToken = gjson.GetBytes(body, "nextPageToken").String()
		if pageToken == "" {
			break
		}
	}
	return items, nil
}

// Fetch downloads a file's content.
func (f *Folder) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id is required", domain.ErrInvalidInput)
	}
	return f.get(ctx, "/files/"+url.PathEscape(fileID)+"?alt=media&supportsAllDrives=true")
}

func (f *Folder) get(ctx context.Context, path string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: drive token: %v", domain.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: drive request failed: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: drive returned %d: %s", domain.ErrUnauthorized,
			resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("drive returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// escapeQuery escapes a value for use inside a single-quoted Drive query
// string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
