package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Defaults for the Drive client.
const (
	DefaultDriveURL = "https://docs.google.com/uc"
	DefaultTimeout  = 5 * time.Minute
)

// DriveOptions configures a DriveClient.
type DriveOptions struct {
	// BaseURL is the download endpoint (uses DefaultDriveURL if empty).
	BaseURL string

	// Timeout bounds one download including its body (uses DefaultTimeout if zero).
	Timeout time.Duration

	// MaxBytes caps a single blob. Zero means no limit.
	MaxBytes int64
}

// DriveClient downloads publicly shared Google Drive files by id. Files too
// large for virus scanning first answer with a warning cookie whose value
// must be echoed back as a confirm token.
type DriveClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	maxBytes   int64
}

// NewDriveClient creates a client with its own cookie session.
func NewDriveClient(opts DriveOptions) (*DriveClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &DriveClient{
		httpClient: &http.Client{Jar: jar},
		baseURL:    opts.BaseURL,
		timeout:    opts.Timeout,
		maxBytes:   opts.MaxBytes,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultDriveURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Fetch starts downloading the file with the given id. The returned reader
// streams the body; closing it ends the request.
func (c *DriveClient) Fetch(ctx context.Context, id string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	resp, err := c.get(ctx, id, "")
	if err != nil {
		cancel()
		return nil, err
	}

	if token := confirmToken(resp); token != "" {
		drain(resp.Body)
		resp, err = c.get(ctx, id, token)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	if isHTML(resp) {
		drain(resp.Body)
		cancel()
		return nil, &RetrievalError{ID: id, StatusCode: resp.StatusCode, Err: errors.New("got an HTML page instead of file contents")}
	}

	remain := int64(-1)
	if c.maxBytes > 0 {
		if resp.ContentLength > c.maxBytes {
			drain(resp.Body)
			cancel()
			return nil, &RetrievalError{ID: id, StatusCode: resp.StatusCode, Err: ErrTooLarge}
		}
		remain = c.maxBytes
	}

	return &limitedBody{rc: resp.Body, id: id, remain: remain, cancel: cancel}, nil
}

func (c *DriveClient) get(ctx context.Context, id, confirm string) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, &RetrievalError{ID: id, Err: fmt.Errorf("invalid base url: %w", err)}
	}
	q := u.Query()
	q.Set("export", "download")
	q.Set("id", id)
	if confirm != "" {
		q.Set("confirm", confirm)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &RetrievalError{ID: id, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", "flowmow")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RetrievalError{ID: id, Err: fmt.Errorf("request failed: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp.Body)
		return nil, &RetrievalError{ID: id, StatusCode: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode >= 400:
		drain(resp.Body)
		return nil, &RetrievalError{ID: id, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	return resp, nil
}

// Close releases idle connections of the session.
func (c *DriveClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func confirmToken(resp *http.Response) string {
	for _, ck := range resp.Cookies() {
		if strings.HasPrefix(ck.Name, "download_warning") {
			return ck.Value
		}
	}
	return ""
}

func isHTML(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	body.Close()
}
