package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/logger"
	"postgrab/pkg/ratelimit"
)

// Options configures a Client.
type Options struct {
	UserAgent string
	// Accept is sent on every request. The API rejects some clients that
	// announce application/json, so the default mirrors a stylesheet fetch.
	Accept string
	// Session is an optional session cookie value.
	Session string
	// MetadataTimeout bounds a single listing or post request.
	MetadataTimeout time.Duration
	// TransferTimeout bounds a whole file transfer; 0 disables it.
	TransferTimeout time.Duration
	// MetadataRetries is the transport retry budget for post metadata.
	MetadataRetries int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	Limiter         ratelimit.Limiter
	Logger          logger.Logger
}

// Client performs every HTTP request postgrab makes. Listing pages and file
// transfers go through a plain pooled client because their callers run their
// own retry state machines; post metadata goes through a retrying client.
type Client struct {
	pages     *http.Client
	metadata  *http.Client
	transfers *http.Client
	headers   map[string]string
	limiter   ratelimit.Limiter
	logger    logger.Logger
}

// NewClient creates a new API client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if opts.Accept == "" {
		opts.Accept = "text/css"
	}

	pages := cleanhttp.DefaultPooledClient()
	pages.Timeout = opts.MetadataTimeout

	transfers := cleanhttp.DefaultPooledClient()
	transfers.Timeout = opts.TransferTimeout

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = opts.MetadataTimeout
	rc.RetryMax = opts.MetadataRetries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.Logger = leveledLogger{log: log.WithField("component", "retryablehttp")}

	headers := map[string]string{
		"Accept": opts.Accept,
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if opts.Session != "" {
		headers["Cookie"] = "session=" + opts.Session
	}

	return &Client{
		pages:     pages,
		metadata:  rc.StandardClient(),
		transfers: transfers,
		headers:   headers,
		limiter:   limiter,
		logger:    log,
	}
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// Page is a fully read listing response.
type Page struct {
	Status int
	// ContentLength is the advertised length, or len(Body) when absent.
	ContentLength int64
	Body          []byte
}

// GetPage fetches one listing page without retrying. A transport failure
// or a truncated body is returned as a network error.
func (c *Client) GetPage(ctx context.Context, url string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.pages.Do(req)
	if err != nil {
		c.logger.WithError(err).DebugWithFields("listing request failed", map[string]interface{}{"url": url})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read listing body")
	}
	length := resp.ContentLength
	if length < 0 {
		length = int64(len(body))
	}

	c.logger.DebugWithFields("listing request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"bytes":    length,
		"duration": time.Since(start),
	})
	return &Page{Status: resp.StatusCode, ContentLength: length, Body: body}, nil
}

// GetPost fetches post metadata, retrying transport failures, 429 and 5xx
// responses up to the metadata retry budget.
func (c *Client) GetPost(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := c.metadata.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.WithCode(errs.FromStatus(resp.StatusCode), resp.StatusCode,
			fmt.Sprintf("unexpected status fetching %s", url))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read post body")
	}
	return body, nil
}

// Open starts a file transfer. When offset is positive a Range header asks
// for the remainder of the file. The caller owns the response body.
func (c *Client) Open(ctx context.Context, url string, offset int64) (*http.Response, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return c.transfers.Do(req)
}

// leveledLogger adapts logger.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log logger.Logger
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.WarnWithFields(msg, kvFields(keysAndValues))
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.DebugWithFields(msg, kvFields(keysAndValues))
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.DebugWithFields(msg, kvFields(keysAndValues))
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.WarnWithFields(msg, kvFields(keysAndValues))
}
