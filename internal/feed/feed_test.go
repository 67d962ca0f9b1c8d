package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 12, 15, 4, 22, 123_000_000, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fetchResult struct {
	page domain.FeedPage
	err  error
}

// gatedFetcher hands each call a channel; the test decides when and how
// each call returns.
type gatedFetcher struct {
	calls chan chan fetchResult
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan chan fetchResult, 16)}
}

func (f *gatedFetcher) Fetch(ctx context.Context) (domain.FeedPage, error) {
	reply := make(chan fetchResult, 1)
	f.calls <- reply
	select {
	case r := <-reply:
		return r.page, r.err
	case <-ctx.Done():
		return domain.FeedPage{}, ctx.Err()
	}
}

func (f *gatedFetcher) next(t *testing.T) chan fetchResult {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not called")
		return nil
	}
}

type funcFetcher func(ctx context.Context) (domain.FeedPage, error)

func (f funcFetcher) Fetch(ctx context.Context) (domain.FeedPage, error) { return f(ctx) }

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not finish")
	}
}

func newTestPoller(f Fetcher, opts ...Option) *Poller {
	opts = append([]Option{
		WithClock(clockwork.NewFakeClockAt(testNow)),
		WithLogger(discardLogger()),
	}, opts...)
	return NewPoller(f, opts...)
}

func TestPoller_InitialState(t *testing.T) {
	p := newTestPoller(newGatedFetcher())
	snap := p.Snapshot()

	assert.Equal(t, StatusConnecting, snap.Status)
	assert.NotNil(t, snap.Detections)
	assert.Empty(t, snap.Detections)
	assert.Empty(t, snap.LastUpdate)
	assert.Empty(t, snap.Err)
}

func TestPoller_SuccessReplacesCollection(t *testing.T) {
	seeds := domain.SeedDetections()
	page := domain.NewFeedPage(seeds)
	p := newTestPoller(funcFetcher(func(context.Context) (domain.FeedPage, error) {
		return page, nil
	}))

	wait(t, p.Poll(context.Background()))

	snap := p.Snapshot()
	assert.Equal(t, StatusLive, snap.Status)
	assert.Equal(t, seeds, snap.Detections)
	assert.Equal(t, seeds[0].Timestamp, snap.LastUpdate)
	assert.Empty(t, snap.Err)
}

func TestPoller_EmptyFeedUsesClockForLastUpdate(t *testing.T) {
	p := newTestPoller(funcFetcher(func(context.Context) (domain.FeedPage, error) {
		return domain.NewFeedPage(nil), nil
	}))

	wait(t, p.Poll(context.Background()))

	snap := p.Snapshot()
	assert.Equal(t, StatusLive, snap.Status)
	assert.Empty(t, snap.Detections)
	assert.Equal(t, "2024-05-12T15:04:22.123Z", snap.LastUpdate)
}

func TestPoller_FailureRetainsData(t *testing.T) {
	seeds := domain.SeedDetections()
	fail := false
	p := newTestPoller(funcFetcher(func(context.Context) (domain.FeedPage, error) {
		if fail {
			return domain.FeedPage{}, errors.New("feed responded 500: boom")
		}
		return domain.NewFeedPage(seeds), nil
	}))

	wait(t, p.Poll(context.Background()))
	fail = true
	wait(t, p.Poll(context.Background()))

	snap := p.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "feed responded 500: boom", snap.Err)
	assert.Equal(t, seeds, snap.Detections)
	assert.Equal(t, seeds[0].Timestamp, snap.LastUpdate)

	// Recovery clears the error.
	fail = false
	wait(t, p.Poll(context.Background()))
	assert.Equal(t, StatusLive, p.Snapshot().Status)
	assert.Empty(t, p.Snapshot().Err)
}

func TestPoller_StaleResponseDiscarded(t *testing.T) {
	f := newGatedFetcher()
	p := newTestPoller(f)
	ctx := context.Background()

	first := p.Poll(ctx)
	firstReply := f.next(t)
	second := p.Poll(ctx)
	secondReply := f.next(t)

	// The superseded request observes its cancellation.
	wait(t, first)
	assert.Equal(t, StatusConnecting, p.Snapshot().Status)

	// A late reply to the old request is ignored either way.
	firstReply <- fetchResult{page: domain.NewFeedPage(domain.SeedDetections()[:1])}

	want := domain.SeedDetections()[1:3]
	secondReply <- fetchResult{page: domain.NewFeedPage(want)}
	wait(t, second)

	snap := p.Snapshot()
	assert.Equal(t, StatusLive, snap.Status)
	assert.Equal(t, want, snap.Detections)
	assert.Empty(t, snap.Err)
}

func TestPoller_CloseStopsUpdates(t *testing.T) {
	f := newGatedFetcher()
	var mu sync.Mutex
	var notified int
	p := newTestPoller(f, OnChange(func(Snapshot) {
		mu.Lock()
		notified++
		mu.Unlock()
	}))

	done := p.Poll(context.Background())
	reply := f.next(t)
	p.Close()
	reply <- fetchResult{page: domain.NewFeedPage(domain.SeedDetections())}
	wait(t, done)

	assert.Equal(t, StatusConnecting, p.Snapshot().Status)
	assert.Empty(t, p.Snapshot().Detections)
	mu.Lock()
	assert.Zero(t, notified)
	mu.Unlock()

	// Polling a closed poller is a no-op.
	wait(t, p.Poll(context.Background()))
	select {
	case <-f.calls:
		t.Fatal("closed poller issued a fetch")
	default:
	}

	p.Close()
}

func TestPoller_OnChangeReceivesCopies(t *testing.T) {
	seeds := domain.SeedDetections()
	snaps := make(chan Snapshot, 1)
	p := newTestPoller(funcFetcher(func(context.Context) (domain.FeedPage, error) {
		return domain.NewFeedPage(seeds), nil
	}), OnChange(func(s Snapshot) { snaps <- s }))

	wait(t, p.Poll(context.Background()))

	got := <-snaps
	require.Len(t, got.Detections, len(seeds))
	got.Detections[0].ID = "mutated"
	assert.Equal(t, "run-001", p.Snapshot().Detections[0].ID)
}

func TestPoller_RunPollsOnTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	f := newGatedFetcher()
	p := NewPoller(f, WithClock(clock), WithLogger(discardLogger()), WithInterval(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	f.next(t) <- fetchResult{page: domain.NewFeedPage(domain.SeedDetections()[:1])}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(time.Second)

	f.next(t) <- fetchResult{page: domain.NewFeedPage(domain.SeedDetections())}
	require.Eventually(t, func() bool {
		return len(p.Snapshot().Detections) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Run closes the poller on exit.
	wait(t, p.Poll(context.Background()))
	assert.Len(t, p.Snapshot().Detections, 5)
}

func TestClient_Fetch(t *testing.T) {
	seeds := domain.SeedDetections()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, DetectionsPath, r.URL.Path)
		assert.Equal(t, "no-store", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(domain.NewFeedPage(seeds)))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL+"/", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeds, page.Detections)
	require.NotNil(t, page.LastUpdate)
	assert.Equal(t, seeds[0].Timestamp, *page.LastUpdate)
}

func TestClient_FetchEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"detections":[],"lastUpdate":null}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, page.Detections)
	assert.Nil(t, page.LastUpdate)
}

func TestClient_FetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"message":"Error al obtener detecciones"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "Error al obtener detecciones")
}

func TestClient_FetchWithoutTimeoutStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := NewClient(srv.URL, 0).Fetch(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancel")
	}
}

func TestClient_Submit(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		_, _ = w.Write([]byte(`{"ok":true,"stored":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.Submit(context.Background(), domain.NewReading(3.9))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Stored)

	_, err = c.Submit(context.Background(), domain.NewReading(1), domain.NewReading(2))
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.JSONEq(t, `{"depth":3.9}`, bodies[0])
	assert.JSONEq(t, `[{"depth":1},{"depth":2}]`, bodies[1])
}

func TestClient_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"message":"Sin mediciones válidas"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Submit(context.Background(), domain.NewReading(1))
	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Sin mediciones válidas", res.Message)
	assert.Contains(t, err.Error(), "400")
}

func TestClient_SubmitUndecodableReply(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated", `{"ok":tr`},
		{"html", `<html>proxy</html>`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Submit(context.Background(), domain.NewReading(1))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "decode submit result")
		})
	}
}

func TestClient_SubmitNothing(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:0", time.Second).Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoValidReadings)
}
