package fetch

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/lazydoc/internal/metrics"
)

// s3Fetcher acquires ranges from an S3 object. S3 honors Range on GetObject
// natively. Objects written by the upload pipeline may be encrypted
// containers; ciphertext is not range-addressable, so those are downloaded
// whole at probe time, decrypted, and sliced from memory afterwards.
type s3Fetcher struct {
	src     S3Object
	client  *s3.Client
	retries int

	mu     sync.Mutex
	probed bool
	size   int64
	ranges bool
	plain  []byte // decrypted container contents, when applicable
}

func newS3Fetcher(ctx context.Context, src S3Object, opts Options) (*s3Fetcher, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &s3Fetcher{src: src, client: s3.NewFromConfig(cfg), retries: opts.Retries}, nil
}

func (f *s3Fetcher) Probe(ctx context.Context) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probed {
		return f.size, f.ranges, nil
	}

	head, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.src.Bucket),
		Key:    aws.String(f.src.Key),
	})
	if err != nil {
		return 0, false, &ProbeError{Ref: f.src.Ref(), Err: err}
	}
	size := int64(0)
	if head.ContentLength != nil {
		size = *head.ContentLength
	}

	// Sniff the container magic; an encrypted object forces the
	// full-buffer path.
	prefix, err := f.getRange(ctx, 0, int64(len(containerMagicGCM)))
	if err != nil {
		return 0, false, &ProbeError{Ref: f.src.Ref(), Err: err}
	}
	if isEncryptedContainer(prefix) {
		body, err := f.getRange(ctx, 0, size)
		if err != nil {
			return 0, false, &ProbeError{Ref: f.src.Ref(), Err: err}
		}
		plain, format, err := decryptContainer(body, f.src.Password)
		if err != nil {
			return 0, false, &ProbeError{Ref: f.src.Ref(), Err: err}
		}
		log.Info().Str("key", f.src.Key).Str("format", format).Int("bytes", len(plain)).Msg("decrypted s3 container")
		f.plain = plain
		f.size = int64(len(plain))
		f.ranges = false
		f.probed = true
		return f.size, false, nil
	}

	f.size = size
	f.ranges = true
	f.probed = true
	return f.size, true, nil
}

func (f *s3Fetcher) FetchRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if _, _, err := f.Probe(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	plain := f.plain
	f.mu.Unlock()
	if plain != nil {
		return sliceRange(f.src.Ref(), plain, offset, length)
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		b, err := f.getRange(ctx, offset, length)
		if err == nil {
			metrics.ObserveRangeFetch("s3", "ok", len(b))
			return b, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		log.Warn().Err(err).Str("key", f.src.Key).Int64("offset", offset).Int("attempt", attempt+1).Msg("s3 range fetch retry")
	}
	metrics.ObserveRangeFetch("s3", "error", 0)
	return nil, &FetchError{Ref: f.src.Ref(), Offset: offset, Length: length, Err: lastErr}
}

func (f *s3Fetcher) getRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.src.Bucket),
		Key:    aws.String(f.src.Key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (f *s3Fetcher) Close() error {
	f.mu.Lock()
	f.plain = nil
	f.mu.Unlock()
	return nil
}
