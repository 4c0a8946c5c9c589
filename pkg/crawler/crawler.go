// Package crawler walks a creator's paginated listing and collects post
// identifiers.
package crawler

import (
	"context"
	"net/http"
	"time"

	"postgrab/pkg/address"
	"postgrab/pkg/api"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/logger"
	"postgrab/pkg/retry"
)

// PageSource fetches one listing page.
type PageSource interface {
	GetPage(ctx context.Context, url string) (*api.Page, error)
}

// Options tunes end-of-listing detection and retries.
type Options struct {
	// EmptyThreshold is the payload size in bytes below which a page is
	// considered empty.
	EmptyThreshold int64
	// Confirmations is the number of consecutive empty pages that end the
	// listing.
	Confirmations int
	// ParseRetries re-fetches a page whose body is not a JSON array; 0
	// records the page as contributing nothing and moves on.
	ParseRetries    int
	ParseRetryDelay time.Duration
	// RateLimitDelay is waited before re-fetching a page answered with 429.
	RateLimitDelay time.Duration
	Logger         logger.Logger
}

// DefaultOptions returns the crawler defaults.
func DefaultOptions() Options {
	return Options{
		EmptyThreshold:  10,
		Confirmations:   3,
		ParseRetryDelay: 2 * time.Second,
		RateLimitDelay:  10 * time.Second,
	}
}

// Crawler enumerates post identifiers.
type Crawler struct {
	src  PageSource
	opts Options
	log  logger.Logger
}

// New creates a Crawler reading pages from src.
func New(src PageSource, opts Options) *Crawler {
	if opts.Confirmations <= 0 {
		opts.Confirmations = 1
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Crawler{src: src, opts: opts, log: log.WithField("component", "crawler")}
}

// Crawl returns the post identifiers reachable from addr in listing order,
// without duplicates. A single post address yields its own id without any
// request. A transport failure aborts the crawl with a crawl_transport error
// and the ids gathered so far.
func (c *Crawler) Crawl(ctx context.Context, addr address.Address) ([]string, error) {
	if addr.Mode == address.SinglePost {
		id, err := addr.PostID()
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	}

	start, single := addr.Page.Single()
	cur := addr.WithPage(address.One(start))

	var ids []string
	seen := make(map[string]bool)
	confirm := 0
	parseRetries := c.opts.ParseRetries

	for {
		url := cur.ListingURL()
		page, err := c.src.GetPage(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return ids, ctx.Err()
			}
			c.log.WithError(err).ErrorWithFields("listing fetch failed", map[string]interface{}{"url": url})
			return ids, errs.Wrap(errs.ErrorTypeCrawlTransport, err, url)
		}

		if page.Status == http.StatusTooManyRequests {
			c.log.WarnWithFields("listing rate limited, waiting", map[string]interface{}{
				"url":   url,
				"delay": c.opts.RateLimitDelay,
			})
			if err := retry.Wait(ctx, c.opts.RateLimitDelay); err != nil {
				return ids, err
			}
			continue
		}

		if page.ContentLength < c.opts.EmptyThreshold {
			confirm++
			c.log.DebugWithFields("empty listing page", map[string]interface{}{
				"url":     url,
				"confirm": confirm,
			})
			if single || confirm >= c.opts.Confirmations {
				break
			}
			continue
		}
		confirm = 0

		entries, err := api.ParseListing(page.Body)
		if err != nil {
			c.log.WithError(err).WarnWithFields("cannot parse listing page", map[string]interface{}{
				"url":     url,
				"status":  page.Status,
				"preview": preview(page.Body),
			})
			if parseRetries > 0 && !single {
				parseRetries--
				if err := retry.Wait(ctx, c.opts.ParseRetryDelay); err != nil {
					return ids, err
				}
				continue
			}
		}

		added := 0
		for _, e := range entries {
			id := string(e.ID)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			added++
		}
		c.log.DebugWithFields("listing page collected", map[string]interface{}{
			"url":   url,
			"posts": added,
		})

		if single {
			break
		}
		parseRetries = c.opts.ParseRetries
		cur = cur.NextPage()
	}

	c.log.InfoWithFields("listing crawled", map[string]interface{}{
		"posts":     len(ids),
		"last_page": cur.Page.String(),
	})
	return ids, nil
}

func preview(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
