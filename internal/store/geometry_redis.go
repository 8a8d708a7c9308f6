package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/lazydoc/internal/pagerec"
)

// GeometryStore persists resolved page geometry in Redis so a document
// reopened later can skip decoding pages it already resolved. Entries are
// keyed by the document digest, which folds in the source ref and size, so
// a changed document never reads stale geometry.
type GeometryStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGeometryStore(redisURL string, ttl time.Duration) (*GeometryStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &GeometryStore{client: c, ttl: ttl}, nil
}

func (s *GeometryStore) Close() error { return s.client.Close() }

func (s *GeometryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func geomKey(digest string, page int) string {
	return fmt.Sprintf("doc:%s:page:%d:geom", digest, page)
}

func (s *GeometryStore) Put(ctx context.Context, digest string, page int, g pagerec.Geometry) error {
	key := geomKey(digest, page)
	m := map[string]interface{}{
		"w":   g.Width,
		"h":   g.Height,
		"rot": int(g.Rotation),
	}
	if err := s.client.HSet(ctx, key, m).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}

func (s *GeometryStore) Get(ctx context.Context, digest string, page int) (pagerec.Geometry, bool, error) {
	res, err := s.client.HGetAll(ctx, geomKey(digest, page)).Result()
	if err != nil {
		return pagerec.Geometry{}, false, err
	}
	if len(res) == 0 {
		return pagerec.Geometry{}, false, nil
	}
	w, err := strconv.ParseFloat(res["w"], 64)
	if err != nil {
		return pagerec.Geometry{}, false, fmt.Errorf("bad cached width %q: %w", res["w"], err)
	}
	h, err := strconv.ParseFloat(res["h"], 64)
	if err != nil {
		return pagerec.Geometry{}, false, fmt.Errorf("bad cached height %q: %w", res["h"], err)
	}
	rot, err := strconv.ParseInt(res["rot"], 10, 64)
	if err != nil {
		return pagerec.Geometry{}, false, fmt.Errorf("bad cached rotation %q: %w", res["rot"], err)
	}
	if w <= 0 || h <= 0 {
		return pagerec.Geometry{}, false, fmt.Errorf("degenerate cached geometry %gx%g", w, h)
	}
	return pagerec.Geometry{
		Width:    w,
		Height:   h,
		Rotation: pagerec.NormalizeRotation(rot),
	}, true, nil
}

// DocCache binds a GeometryStore to one document digest, giving the
// per-document view the resolver consumes.
type DocCache struct {
	store  *GeometryStore
	digest string
}

func (s *GeometryStore) ForDocument(digest string) *DocCache {
	return &DocCache{store: s, digest: digest}
}

func (c *DocCache) Get(ctx context.Context, page int) (pagerec.Geometry, bool, error) {
	return c.store.Get(ctx, c.digest, page)
}

func (c *DocCache) Put(ctx context.Context, page int, g pagerec.Geometry) error {
	return c.store.Put(ctx, c.digest, page, g)
}
