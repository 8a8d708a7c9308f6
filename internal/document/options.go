package document

import (
	"github.com/local/lazydoc/internal/decoder"
	"github.com/local/lazydoc/internal/fetch"
	"github.com/local/lazydoc/internal/pagerec"
	"github.com/local/lazydoc/internal/store"
)

type options struct {
	fallback    pagerec.Geometry
	concurrency int
	maxFailures int
	eventBuffer int
	fetchOpts   fetch.Options
	cache       *store.GeometryStore
	prompt      decoder.PasswordPrompt
	decoder     PageDecoder
}

func defaultOptions() options {
	return options{
		fallback:    pagerec.Geometry{Width: pagerec.FallbackWidth, Height: pagerec.FallbackHeight},
		concurrency: 4,
		maxFailures: 2,
		eventBuffer: 64,
	}
}

// Option configures Open.
type Option func(*options)

// WithFallback overrides the placeholder geometry reported for pages that
// have not resolved yet.
func WithFallback(g pagerec.Geometry) Option {
	return func(o *options) { o.fallback = g }
}

// WithConcurrency bounds how many pages a batch resolve works on at once.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithFetchOptions tunes the transport used to reach the source.
func WithFetchOptions(fo fetch.Options) Option {
	return func(o *options) { o.fetchOpts = fo }
}

// WithGeometryCache enables the Redis read-through cache for resolved
// geometry.
func WithGeometryCache(s *store.GeometryStore) Option {
	return func(o *options) { o.cache = s }
}

// WithPasswordPrompt supplies credentials for encrypted documents. Without
// it an encrypted document fails to open with ErrPasswordRequired.
func WithPasswordPrompt(p decoder.PasswordPrompt) Option {
	return func(o *options) { o.prompt = p }
}

// WithDecoder injects a prebuilt decoder, bypassing probe and open. The
// document takes ownership and closes it on Dispose.
func WithDecoder(dec PageDecoder) Option {
	return func(o *options) { o.decoder = dec }
}
