package remfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/batchatco/go-nwb-meta/internal"
	"github.com/pkg/errors"
)

// httpSource reads ranges of a URL. The original URL is resolved once
// through its redirects; presigned storage URLs that expire (403) are
// resolved again.
type httpSource struct {
	client    *http.Client
	userAgent string
	origURL   string
	finalURL  string
	length    int64
	logger    *internal.Logger
}

func newHTTPSource(ctx context.Context, client *http.Client, userAgent, url string, logger *internal.Logger) (*httpSource, error) {
	s := &httpSource{
		client:    client,
		userAgent: userAgent,
		origURL:   url,
		logger:    logger,
	}
	if err := s.resolve(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// resolve asks for the first byte of the original URL, recording where
// the redirects end and the total size from Content-Range.
func (s *httpSource) resolve(ctx context.Context) error {
	resp, err := s.get(ctx, s.origURL, 0, 1)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, s.origURL); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_, length, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return errors.Wrap(err, s.origURL)
	}
	s.finalURL = resp.Request.URL.String()
	s.length = length
	if s.finalURL != s.origURL {
		s.logger.Debugf("%s redirects to %s", s.origURL, s.finalURL)
	}
	return nil
}

func (s *httpSource) get(ctx context.Context, url string, off, n int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", url)
	}
	return resp, nil
}

func (s *httpSource) size() int64 {
	return s.length
}

func (s *httpSource) fetch(ctx context.Context, off, n int64) ([]byte, error) {
	resp, err := s.get(ctx, s.finalURL, off, n)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden && s.finalURL != s.origURL {
		resp.Body.Close()
		s.logger.Infof("%s expired, resolving again", s.finalURL)
		if err := s.resolve(ctx); err != nil {
			return nil, err
		}
		if resp, err = s.get(ctx, s.finalURL, off, n); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, s.finalURL); err != nil {
		return nil, err
	}
	start, _, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, errors.Wrap(err, s.finalURL)
	}
	if start != off {
		return nil, errors.Wrapf(ErrRange, "asked for %d, got %d", off, start)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes at %d", n, off)
	}
	return buf, nil
}

func (s *httpSource) close() error {
	s.client.CloseIdleConnections()
	return nil
}

// checkStatus insists on 206: a 200 means the whole file is coming.
func checkStatus(resp *http.Response, url string) error {
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return nil
	case http.StatusOK:
		return errors.Wrapf(ErrRange, "%s: server sent the whole file", url)
	}
	return errors.Wrapf(ErrStatus, "%s: %s", url, resp.Status)
}

// parseContentRange parses "bytes <start>-<end>/<length>".
func parseContentRange(cr string) (start, length int64, err error) {
	spec, ok := strings.CutPrefix(cr, "bytes ")
	if !ok {
		return 0, 0, errors.Wrapf(ErrRange, "Content-Range %q", cr)
	}
	rng, total, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, errors.Wrapf(ErrRange, "Content-Range %q", cr)
	}
	first, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, errors.Wrapf(ErrRange, "Content-Range %q", cr)
	}
	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(ErrRange, "Content-Range %q", cr)
	}
	length, err = strconv.ParseInt(total, 10, 64)
	if err != nil || length <= 0 {
		return 0, 0, errors.Wrapf(ErrRange, "Content-Range %q", cr)
	}
	return start, length, nil
}
