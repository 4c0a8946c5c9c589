// Package fetcher resolves a post's metadata into downloadable attachment URLs.
package fetcher

import (
	"context"
	"fmt"
	"path"
	"time"

	"postgrab/pkg/api"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/logger"
	"postgrab/pkg/retry"
)

// PostSource fetches raw post metadata. Transport retries are the source's
// responsibility.
type PostSource interface {
	GetPost(ctx context.Context, url string) ([]byte, error)
}

// Attachment is a downloadable file of a post.
type Attachment struct {
	URL  string
	Name string
}

// Result lists a post's attachments in emission order (attachments first,
// then previews) and the references that could not be resolved.
type Result struct {
	Attachments []Attachment
	Skipped     []string
}

// Options configures a Fetcher.
type Options struct {
	// Domain is scheme://host, used for the legacy post.file layout.
	Domain string
	// ParseRetries re-fetches a post whose body cannot be decoded.
	ParseRetries    int
	ParseRetryDelay time.Duration
	Logger          logger.Logger
}

// Fetcher resolves posts into attachments.
type Fetcher struct {
	src  PostSource
	opts Options
	log  logger.Logger
}

// New creates a Fetcher.
func New(src PostSource, opts Options) *Fetcher {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{src: src, opts: opts, log: log.WithField("component", "fetcher")}
}

// Fetch requests postURL and returns its attachments. Any failure is an
// attachment_fetch error; the caller records the post as failed.
func (f *Fetcher) Fetch(ctx context.Context, postURL string) (Result, error) {
	post, err := retry.DoWithResult(ctx, retry.Config{
		Retries: f.opts.ParseRetries,
		Backoff: retry.ConstantBackoff{Delay: f.opts.ParseRetryDelay},
		RetryIf: func(err error) bool { return errs.Is(err, errs.ErrorTypeParsing) },
		Logger:  f.log,
	}, func() (*api.PostResponse, error) {
		body, err := f.src.GetPost(ctx, postURL)
		if err != nil {
			return nil, err
		}
		post, err := api.ParsePost(body)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeParsing, err, "post metadata")
		}
		return post, nil
	})
	if err != nil {
		f.log.WithError(err).WarnWithFields("post fetch failed", map[string]interface{}{"post": postURL})
		return Result{}, errs.Wrap(errs.ErrorTypeAttachmentFetch, err, postURL)
	}

	res := Resolve(post, f.opts.Domain)
	for _, s := range res.Skipped {
		f.log.WarnWithFields("attachment without server or path", map[string]interface{}{
			"post": postURL,
			"ref":  s,
		})
	}
	return res, nil
}

// Resolve turns a decoded post into attachments. Every attachments and
// previews element with both server and path yields server/data/path;
// elements missing either are reported as skipped. When both arrays are
// empty the post's own file, if any, is resolved against domain.
func Resolve(post *api.PostResponse, domain string) Result {
	var res Result
	add := func(kind string, i int, ref api.FileRef) {
		if ref.Server == nil || ref.Path == nil || *ref.Server == "" || *ref.Path == "" {
			res.Skipped = append(res.Skipped, describe(post, kind, i, ref))
			return
		}
		res.Attachments = append(res.Attachments, newAttachment(*ref.Server, *ref.Path, ref.Name))
	}
	for i, ref := range post.Attachments {
		add("attachment", i, ref)
	}
	for i, ref := range post.Previews {
		add("preview", i, ref)
	}

	if len(post.Attachments) == 0 && len(post.Previews) == 0 {
		if file := post.Post.File; file != nil && file.Path != nil && *file.Path != "" && domain != "" {
			res.Attachments = append(res.Attachments, newAttachment(domain, *file.Path, file.Name))
		}
	}
	return res
}

func newAttachment(server, filePath, name string) Attachment {
	if name == "" {
		name = path.Base(filePath)
	}
	return Attachment{URL: server + "/data" + filePath, Name: name}
}

func describe(post *api.PostResponse, kind string, i int, ref api.FileRef) string {
	switch {
	case ref.Path != nil && *ref.Path != "":
		return *ref.Path
	case ref.Name != "":
		return ref.Name
	default:
		return fmt.Sprintf("post %s %s #%d", post.Post.ID, kind, i)
	}
}
