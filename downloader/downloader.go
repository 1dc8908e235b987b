package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("file not found")

type GetOptions struct {
	MaxSize int
	Timeout time.Duration

	// Attempts after the first one, for transient failures.
	Retries uint64

	// Delay before the first retry. Doubles for every attempt.
	RetryInterval time.Duration
}

func DefaultGetOptions() GetOptions {
	return GetOptions{
		Timeout:       2 * time.Minute,
		Retries:       4,
		RetryInterval: time.Second,
	}
}

// A read-only source of timetable files, keyed by name.
type Downloader interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// Implemented by sources able to enumerate their files.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Retrieves the named files. When names is empty, and d is a Lister,
// all of d's files are retrieved.
func GetAll(ctx context.Context, d Downloader, names []string) (map[string][]byte, error) {
	if len(names) == 0 {
		lister, ok := d.(Lister)
		if !ok {
			return nil, fmt.Errorf("no files named, and source can't list its files")
		}
		var err error
		names, err = lister.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing files: %w", err)
		}
	}

	files := make(map[string][]byte, len(names))
	for _, name := range names {
		body, err := d.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("getting %s: %w", name, err)
		}
		log.Debug().Str("file", name).Int("bytes", len(body)).Msg("retrieved")
		files[name] = body
	}

	return files, nil
}

// Gets files relative to a base URL, retrying server errors with
// exponential backoff.
type HTTPDownloader struct {
	BaseURL string
	Headers map[string]string
	Options GetOptions
}

func NewHTTPDownloader(baseURL string, headers map[string]string, options GetOptions) *HTTPDownloader {
	return &HTTPDownloader{
		BaseURL: baseURL,
		Headers: headers,
		Options: options,
	}
}

func (d *HTTPDownloader) Get(ctx context.Context, name string) ([]byte, error) {
	target, err := url.JoinPath(d.BaseURL, name)
	if err != nil {
		return nil, fmt.Errorf("building url: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	if d.Options.RetryInterval > 0 {
		b.InitialInterval = d.Options.RetryInterval
	}
	b.Multiplier = 2

	return backoff.RetryNotifyWithData(
		func() ([]byte, error) {
			body, err := HTTPGet(ctx, target, d.Headers, d.Options)
			var status *StatusError
			if errors.As(err, &status) && !status.Temporary() {
				return nil, backoff.Permanent(err)
			}
			return body, err
		},
		backoff.WithContext(backoff.WithMaxRetries(b, d.Options.Retries), ctx),
		func(err error, wait time.Duration) {
			log.Warn().Err(err).Str("url", target).Dur("wait", wait).Msg("retrying download")
		},
	)
}

// Non-200 response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Status)
}

func (e *StatusError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Gets a file. Doesn't retry. Provided as convenience for
// implementing custom Downloaders.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(options.MaxSize))
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return body, nil
}

func sortedNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
