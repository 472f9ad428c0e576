// Package acquire downloads model artifacts. Redirects are followed by hand so
// every hop is visible, free space is checked before the first byte is
// written, and no partial file survives a failed attempt.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/internal/registry"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultMaxRedirects = 10
	DefaultChunkSize    = 64 * 1024
	DefaultHeadroom     = 900 * 1024 * 1024
	defaultUserAgent    = "inferd/1.0"
)

// SpaceProbe reports free bytes on the volume holding a path.
type SpaceProbe interface {
	AvailableBytes(path string) uint64
}

// Config holds Downloader tunables.
type Config struct {
	// Client is copied; its CheckRedirect is replaced.
	Client       *http.Client
	Space        SpaceProbe
	MaxRedirects int
	ChunkSize    int
	// Headroom is added to the artifact size to form the free-space margin.
	Headroom  uint64
	UserAgent string
	Log       zerolog.Logger
}

// Downloader fetches artifacts. It holds no per-download state and is safe for
// concurrent use, though the lifecycle controller runs one acquisition at a time.
type Downloader struct {
	client       *http.Client
	space        SpaceProbe
	maxRedirects int
	chunkSize    int
	headroom     uint64
	userAgent    string
	log          zerolog.Logger
}

// New constructs a Downloader from cfg, applying defaults.
func New(cfg Config) *Downloader {
	c := &http.Client{}
	if cfg.Client != nil {
		cp := *cfg.Client
		c = &cp
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	d := &Downloader{
		client:       c,
		space:        cfg.Space,
		maxRedirects: cfg.MaxRedirects,
		chunkSize:    cfg.ChunkSize,
		headroom:     cfg.Headroom,
		userAgent:    cfg.UserAgent,
		log:          cfg.Log,
	}
	if d.maxRedirects <= 0 {
		d.maxRedirects = DefaultMaxRedirects
	}
	if d.chunkSize <= 0 {
		d.chunkSize = DefaultChunkSize
	}
	if d.headroom == 0 {
		d.headroom = DefaultHeadroom
	}
	if d.userAgent == "" {
		d.userAgent = defaultUserAgent
	}
	return d
}

// session is the ephemeral state of one Acquire call.
type session struct {
	target    string
	part      string
	written   int64
	total     int64
	redirects int
}

// Acquire downloads desc.URL to target. onProgress receives in-stream percent
// values only when they change (never 100), then exactly one terminal 100 on
// success. It runs on the calling goroutine. On any error the target and its
// temporary file are removed.
func (d *Downloader) Acquire(ctx context.Context, desc registry.Descriptor, target string, onProgress func(int)) (err error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	s := &session{target: target, part: target + ".part", total: -1}
	start := time.Now()
	defer func() {
		downloadsTotal.WithLabelValues(resultLabel(err)).Inc()
		if err != nil {
			d.cleanup(s)
			d.log.Error().Err(err).Str("event", "acquire_failed").Str("model", desc.Name).
				Int("redirects", s.redirects).Int64("written", s.written).Msg("acquisition failed")
			return
		}
		d.log.Info().Str("event", "acquire_done").Str("model", desc.Name).Str("path", target).
			Str("size", humanize.IBytes(uint64(s.written))).Dur("dur", time.Since(start)).Msg("acquisition complete")
	}()

	if desc.URL == "" {
		return ErrNoSource
	}
	resp, err := d.open(ctx, desc.URL, s)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	s.total = resp.ContentLength

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Err: err}
	}
	need := d.margin(desc, s.total)
	if d.space != nil {
		if have := d.space.AvailableBytes(dir); have < need {
			return &InsufficientStorageError{Need: need, Have: have}
		}
	}

	d.log.Info().Str("event", "acquire_start").Str("model", desc.Name).Str("url", resp.Request.URL.String()).
		Int64("content_length", s.total).Int("redirects", s.redirects).Msg("streaming artifact")
	if err := d.stream(resp.Body, s, onProgress); err != nil {
		return err
	}
	if desc.MinValidBytes > 0 && s.written < desc.MinValidBytes {
		return &IOError{Op: "verify", Err: fmt.Errorf("artifact is %d bytes, below minimum %d", s.written, desc.MinValidBytes)}
	}
	if err := os.Rename(s.part, s.target); err != nil {
		return &IOError{Op: "rename", Err: err}
	}
	onProgress(100)
	return nil
}

// open issues the GET and follows redirects manually up to the hop limit.
func (d *Downloader) open(ctx context.Context, raw string, s *session) (*http.Response, error) {
	cur, err := url.Parse(raw)
	if err != nil {
		return nil, &IOError{Op: "parse url", Err: err}
	}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cur.String(), nil)
		if err != nil {
			return nil, &IOError{Op: "request", Err: err}
		}
		req.Header.Set("User-Agent", d.userAgent)
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, &IOError{Op: "connect", Err: err}
		}
		if !isRedirect(resp.StatusCode) {
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, &HTTPError{Status: resp.StatusCode, URL: cur.String()}
			}
			return resp, nil
		}
		loc := resp.Header.Get("Location")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if s.redirects >= d.maxRedirects {
			return nil, ErrTooManyRedirects
		}
		if loc == "" {
			return nil, &HTTPError{Status: resp.StatusCode, URL: cur.String()}
		}
		next, err := cur.Parse(loc)
		if err != nil {
			return nil, &IOError{Op: "redirect", Err: err}
		}
		s.redirects++
		d.log.Debug().Str("event", "acquire_redirect").Int("hop", s.redirects).Str("to", next.String()).Msg("following redirect")
		cur = next
	}
}

func (d *Downloader) stream(body io.Reader, s *session, onProgress func(int)) error {
	f, err := os.OpenFile(s.part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &IOError{Op: "create", Err: err}
	}
	buf := make([]byte, d.chunkSize)
	last := -1
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				return &IOError{Op: "write", Err: werr}
			}
			s.written += int64(n)
			downloadBytesTotal.Add(float64(n))
			if s.total > 0 {
				pct := int(s.written * 100 / s.total)
				if pct > 99 {
					pct = 99
				}
				if pct != last {
					last = pct
					onProgress(pct)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			return &IOError{Op: "read", Err: rerr}
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &IOError{Op: "sync", Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	if s.total > 0 && s.written != s.total {
		return &IOError{Op: "read", Err: io.ErrUnexpectedEOF}
	}
	return nil
}

// margin is the free space required before streaming begins.
func (d *Downloader) margin(desc registry.Descriptor, contentLength int64) uint64 {
	if desc.RequiredFreeBytes > 0 {
		return desc.RequiredFreeBytes
	}
	size := desc.MinValidBytes
	if contentLength > size {
		size = contentLength
	}
	if size < 0 {
		size = 0
	}
	return uint64(size) + d.headroom
}

func (d *Downloader) cleanup(s *session) {
	for _, p := range []string{s.part, s.target} {
		if err := fsutil.RemoveIfExists(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.log.Warn().Err(err).Str("event", "acquire_cleanup").Str("path", p).Msg("failed to remove partial artifact")
		}
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
