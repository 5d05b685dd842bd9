package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vincent19951222/quiz-website/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	authPath   = "/open-apis/auth/v3/tenant_access_token/internal"
	recordPath = "/open-apis/bitable/v1/apps/%s/tables/%s/records"
	searchPath = "/open-apis/bitable/v1/apps/%s/tables/%s/records/search"

	// Renew this long before the server-reported expiry so a token is never
	// presented right at its deadline.
	earlyRenewal = 300 * time.Second

	// Pause between records in a batch to stay inside upstream rate limits.
	defaultBatchDelay = 100 * time.Millisecond
)

// Config carries the long-lived table-service credentials. An incomplete
// config leaves the client unconfigured and every call becomes a no-op
// failure without network access.
type Config struct {
	BaseURL   string
	AppID     string
	AppSecret string
	AppToken  string
	TableID   string
}

// Client talks to the Bitable-style table API through the configured base
// URL (a same-origin proxy in the original deployment). The bearer token is
// cached in memory as private client state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	batchDelay time.Duration
	now        func() time.Time
	sf         singleflight.Group

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		batchDelay: defaultBatchDelay,
		now:        time.Now,
	}
}

// Configured reports whether all credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.AppID != "" && c.cfg.AppSecret != "" && c.cfg.AppToken != "" && c.cfg.TableID != ""
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// Authenticate exchanges the app credentials for a tenant access token. A
// cached, unexpired token is reused; concurrent renewals collapse into one
// request.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", &domain.AuthError{Msg: "client not configured"}
	}

	c.mu.Lock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	result, err, _ := c.sf.Do("token", func() (interface{}, error) {
		c.mu.Lock()
		if c.token != "" && c.now().Before(c.tokenExpiry) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		body, err := c.postJSON(ctx, c.cfg.BaseURL+authPath, "", map[string]string{
			"app_id":     c.cfg.AppID,
			"app_secret": c.cfg.AppSecret,
		})
		if err != nil {
			return "", err
		}

		var resp tokenResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &domain.AuthError{Msg: "malformed token payload"}
		}
		if resp.Code != 0 {
			return "", &domain.AuthError{Code: resp.Code, Msg: resp.Msg}
		}
		if resp.TenantAccessToken == "" {
			return "", &domain.AuthError{Msg: "empty token in payload"}
		}

		c.mu.Lock()
		c.token = resp.TenantAccessToken
		c.tokenExpiry = c.now().Add(time.Duration(resp.Expire)*time.Second - earlyRenewal)
		c.mu.Unlock()
		return resp.TenantAccessToken, nil
	})
	if err != nil {
		var tErr *domain.TransportError
		var aErr *domain.AuthError
		if !errors.As(err, &tErr) && !errors.As(err, &aErr) {
			err = &domain.AuthError{Msg: err.Error()}
		}
		return "", err
	}
	return result.(string), nil
}

type createRecordResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Record struct {
			RecordID string `json:"record_id"`
		} `json:"record"`
	} `json:"data"`
}

// Upload creates one row in the remote table. Application-level rejections
// are logged and reported as false; only genuine transport faults return an
// error. There is no automatic retry.
func (c *Client) Upload(ctx context.Context, record Record) (bool, error) {
	if !c.Configured() {
		return false, nil
	}

	token, err := c.Authenticate(ctx)
	if err != nil {
		var tErr *domain.TransportError
		if errors.As(err, &tErr) {
			return false, err
		}
		c.logger.Warn("upload auth failed", "err", err)
		return false, nil
	}

	url := c.cfg.BaseURL + fmt.Sprintf(recordPath, c.cfg.AppToken, c.cfg.TableID)
	body, err := c.postJSON(ctx, url, token, record)
	if err != nil {
		var tErr *domain.TransportError
		if errors.As(err, &tErr) {
			return false, err
		}
		c.logger.Warn("upload rejected", "err", err)
		return false, nil
	}

	var resp createRecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("upload response malformed", "err", err)
		return false, nil
	}
	if resp.Code != 0 {
		c.logger.Warn("upload rejected", "code", resp.Code, "msg", resp.Msg)
		return false, nil
	}
	c.logger.Info("record uploaded", "record_id", resp.Data.Record.RecordID)
	return true, nil
}

// BatchUpload pushes records one at a time with a fixed pause between calls.
// Individual failures of any kind are absorbed; the batch always runs to the
// end and returns how many records made it.
func (c *Client) BatchUpload(ctx context.Context, records []Record) int {
	if !c.Configured() {
		return 0
	}

	successCount := 0
	for i, record := range records {
		ok, err := c.Upload(ctx, record)
		if err != nil {
			c.logger.Warn("batch record failed", "index", i, "err", err)
		} else if ok {
			successCount++
		}
		if i < len(records)-1 {
			select {
			case <-ctx.Done():
				return successCount
			case <-time.After(c.batchDelay):
			}
		}
	}
	return successCount
}

// TestConnection authenticates and runs a minimal read probe against the
// table. It never returns an error to the caller: any failure is false.
func (c *Client) TestConnection(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}

	token, err := c.Authenticate(ctx)
	if err != nil {
		c.logger.Warn("connection test auth failed", "err", err)
		return false
	}

	url := c.cfg.BaseURL + fmt.Sprintf(searchPath, c.cfg.AppToken, c.cfg.TableID)
	body, err := c.postJSON(ctx, url, token, map[string]int{"page_size": 1})
	if err != nil {
		c.logger.Warn("connection test probe failed", "err", err)
		return false
	}

	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Code != 0 {
		c.logger.Warn("connection test rejected", "msg", resp.Msg, "code", resp.Code)
		return false
	}
	return true
}

// UploadAttempt implements the attempt engine's uploader port: project the
// attempt into the table shape and create the row.
func (c *Client) UploadAttempt(ctx context.Context, attempt domain.Attempt, env domain.Environment) (bool, error) {
	return c.Upload(ctx, BuildRecord(attempt, env))
}

// postJSON sends a JSON body and returns the raw response payload. Network
// faults come back as TransportError; a non-2xx status or a non-JSON
// content type is an application-level failure.
func (c *Client) postJSON(ctx context.Context, url, token string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil, fmt.Errorf("non-JSON response: %q", contentType)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, &domain.TransportError{Op: "read", Err: err}
	}
	return buf.Bytes(), nil
}
