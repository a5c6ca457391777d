package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pixcache/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	err   error
	calls atomic.Int32
}

func (f *fakeResolver) Resolve(raw string) (domain.Location, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.Location{}, f.err
	}
	return domain.LocalLocation("/assets" + raw), nil
}

type fakeFetcher struct {
	data    []byte
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ domain.Location) ([]byte, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.data, f.err
}

type fakeConverter struct {
	err   error
	calls atomic.Int32
}

func (f *fakeConverter) Transform(_ context.Context, data []byte, opts domain.TransformOptions) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("%s|%dx%d|q%d|%s", data, opts.Width, opts.Height, opts.Quality, opts.Format)), nil
}

type memoryCache struct {
	mu       sync.Mutex
	entries  map[domain.CacheKey][]byte
	storeErr error
	stores   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[domain.CacheKey][]byte)}
}

func (m *memoryCache) Lookup(key domain.CacheKey) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	return data, ok
}

func (m *memoryCache) Store(key domain.CacheKey, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores++
	if m.storeErr != nil {
		return m.storeErr
	}
	m.entries[key] = data
	return nil
}

type fixture struct {
	resolver  *fakeResolver
	fetcher   *fakeFetcher
	converter *fakeConverter
	cache     *memoryCache
}

func newFixture() *fixture {
	return &fixture{
		resolver:  &fakeResolver{},
		fetcher:   &fakeFetcher{data: []byte("raw")},
		converter: &fakeConverter{},
		cache:     newMemoryCache(),
	}
}

func (f *fixture) service(opts ...Option) *ImageService {
	return NewImageService(f.resolver, f.fetcher, f.converter, f.cache, opts...)
}

var photoRequest = domain.TransformRequest{Source: "/photo.jpg", Width: 400, Quality: 80, Format: domain.WebP}

func TestServeCacheRoundTrip(t *testing.T) {
	f := newFixture()
	s := f.service()

	first, err := s.Serve(context.Background(), photoRequest)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, domain.WebP, first.Format)
	assert.Equal(t, domain.DeriveCacheKey(photoRequest), first.Key)
	assert.Equal(t, "raw|400x0|q80|webp", string(first.Data))

	second, err := s.Serve(context.Background(), photoRequest)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)

	assert.Equal(t, int32(1), f.resolver.calls.Load())
	assert.Equal(t, int32(1), f.fetcher.calls.Load())
	assert.Equal(t, int32(1), f.converter.calls.Load())
	assert.Equal(t, StatsSnapshot{Hits: 1, Misses: 1, Fills: 1}, s.Stats().Snapshot())
}

func TestServeQueryNoiseSharesEntry(t *testing.T) {
	f := newFixture()
	s := f.service()

	_, err := s.Serve(context.Background(), photoRequest)
	require.NoError(t, err)

	noisy := photoRequest
	noisy.Source = "/photo.jpg?cachebust=1"
	img, err := s.Serve(context.Background(), noisy)
	require.NoError(t, err)
	assert.True(t, img.Cached)
	assert.Equal(t, int32(1), f.converter.calls.Load())
}

func TestServeErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture)
		req       domain.TransformRequest
		wantErr   error
		wantFetch int32
	}{
		{
			name:    "missing source",
			setup:   func(_ *fixture) {},
			req:     domain.TransformRequest{Quality: 80, Format: domain.WebP},
			wantErr: domain.ErrBadRequest,
		},
		{
			name: "forbidden path",
			setup: func(f *fixture) {
				f.resolver.err = fmt.Errorf("%w: path outside of assets root", domain.ErrForbidden)
			},
			req:     photoRequest,
			wantErr: domain.ErrForbidden,
		},
		{
			name: "not found",
			setup: func(f *fixture) {
				f.fetcher.err = fmt.Errorf("%w: source file", domain.ErrNotFound)
			},
			req:       photoRequest,
			wantErr:   domain.ErrNotFound,
			wantFetch: 1,
		},
		{
			name: "upstream failure",
			setup: func(f *fixture) {
				f.fetcher.err = fmt.Errorf("%w: status 502", domain.ErrUpstream)
			},
			req:       photoRequest,
			wantErr:   domain.ErrUpstream,
			wantFetch: 1,
		},
		{
			name: "decode failure",
			setup: func(f *fixture) {
				f.converter.err = fmt.Errorf("%w: garbage", domain.ErrDecode)
			},
			req:       photoRequest,
			wantErr:   domain.ErrDecode,
			wantFetch: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tc.setup(f)
			s := f.service()

			img, err := s.Serve(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, img)
			assert.Equal(t, tc.wantFetch, f.fetcher.calls.Load())
			assert.Empty(t, f.cache.entries)
		})
	}
}

func TestServeStoreFailureIsBestEffort(t *testing.T) {
	f := newFixture()
	f.cache.storeErr = errors.New("disk full")
	s := f.service()

	img, err := s.Serve(context.Background(), photoRequest)
	require.NoError(t, err)
	assert.Equal(t, "raw|400x0|q80|webp", string(img.Data))
	assert.Equal(t, int64(1), s.Stats().Snapshot().StoreFailures)
}

func TestServeStoreFailureWithRequirePersist(t *testing.T) {
	f := newFixture()
	f.cache.storeErr = errors.New("disk full")
	s := f.service(WithRequirePersist(true))

	img, err := s.Serve(context.Background(), photoRequest)
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Nil(t, img)
}

func TestServeCancelledBeforeTransform(t *testing.T) {
	f := newFixture()
	f.fetcher.started = make(chan struct{}, 1)
	f.fetcher.release = make(chan struct{})
	s := f.service()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Serve(ctx, photoRequest)
		errCh <- err
	}()

	<-f.fetcher.started
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), f.converter.calls.Load())
	assert.Empty(t, f.cache.entries)
}

func TestServeCoalescesConcurrentMisses(t *testing.T) {
	f := newFixture()
	f.fetcher.started = make(chan struct{}, 2)
	f.fetcher.release = make(chan struct{})
	s := f.service(WithCoalescing(true))

	var wg sync.WaitGroup
	results := make([]*domain.Image, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = s.Serve(context.Background(), photoRequest)
	}()
	<-f.fetcher.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = s.Serve(context.Background(), photoRequest)
	}()

	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Data, results[1].Data)
	assert.Equal(t, int32(1), f.fetcher.calls.Load())
	assert.Equal(t, int32(1), f.converter.calls.Load())
	assert.Equal(t, 1, f.cache.stores)
}

func TestServeWithoutCoalescingRepeatsWork(t *testing.T) {
	f := newFixture()
	f.fetcher.started = make(chan struct{}, 2)
	f.fetcher.release = make(chan struct{})
	s := f.service()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Serve(context.Background(), photoRequest)
			assert.NoError(t, err)
		}()
	}

	<-f.fetcher.started
	<-f.fetcher.started
	close(f.fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(2), f.fetcher.calls.Load())
	assert.Equal(t, 2, f.cache.stores)
}
