package signals

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock, domain.MomentumConfig) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	var seq atomic.Int64
	r := NewRegistry(
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("sig-%d", seq.Add(1)) }),
	)
	cfg, err := domain.NewMomentumConfig(domain.MomentumParams{
		MinPrice1h: 1, MinVolumeRatio: 1.5, BreakoutThresh: 95, MinMomentumScore: 50,
		StopLossPct: 5, TakeProfitPct: 10, TrailingStopPct: 2, MaxPositionValue: 100, SignalTTLHours: 2,
	})
	require.NoError(t, err)
	return r, clock, cfg
}

func TestTryCreate_Dedup(t *testing.T) {
	r, _, cfg := newTestRegistry(t)

	s, expired, ok := r.TryCreate("BTCUSDT", 70, []string{"price"}, cfg)
	require.True(t, ok)
	assert.Nil(t, expired)
	assert.Equal(t, domain.SignalActive, s.Status)
	assert.Equal(t, s.TriggeredAt.Add(2*time.Hour), s.ExpiresAt)

	_, _, ok = r.TryCreate("BTCUSDT", 80, nil, cfg)
	assert.False(t, ok)

	_, _, ok = r.TryCreate("ETHUSDT", 65, nil, cfg)
	assert.True(t, ok)
	assert.Len(t, r.Active(), 2)
}

func TestTryCreate_ConcurrentSingleWinner(t *testing.T) {
	r, _, cfg := newTestRegistry(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok := r.TryCreate("SOLUSDT", 75, nil, cfg); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Len(t, r.Active(), 1)
}

func TestMarkTraded(t *testing.T) {
	r, _, cfg := newTestRegistry(t)
	s, _, _ := r.TryCreate("BTCUSDT", 70, nil, cfg)

	traded, err := r.MarkTraded(s.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalTraded, traded.Status)

	_, err = r.MarkTraded(s.ID, "BTCUSDT")
	assert.ErrorIs(t, err, ErrSignalNotActive)

	// el símbolo queda libre para una nueva señal
	_, _, ok := r.TryCreate("BTCUSDT", 70, nil, cfg)
	assert.True(t, ok)
}

func TestMarkTraded_ExpiredSignal(t *testing.T) {
	r, clock, cfg := newTestRegistry(t)
	s, _, _ := r.TryCreate("BTCUSDT", 70, nil, cfg)

	clock.Advance(2 * time.Hour)
	_, err := r.MarkTraded(s.ID, "BTCUSDT")
	assert.ErrorIs(t, err, ErrSignalNotActive)
}

func TestSweep_ExpiresAfterTTL(t *testing.T) {
	r, clock, cfg := newTestRegistry(t)
	r.TryCreate("BTCUSDT", 70, nil, cfg)
	clock.Advance(time.Hour)
	r.TryCreate("ETHUSDT", 70, nil, cfg)

	clock.Advance(59 * time.Minute)
	assert.Empty(t, r.Sweep())

	clock.Advance(time.Minute)
	expired := r.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, "BTCUSDT", expired[0].Symbol)
	assert.Equal(t, domain.SignalExpired, expired[0].Status)

	_, ok := r.Get("BTCUSDT")
	assert.False(t, ok)
	_, ok = r.Get("ETHUSDT")
	assert.True(t, ok)
}

func TestTryCreate_ReplacesStaleActive(t *testing.T) {
	r, clock, cfg := newTestRegistry(t)
	first, _, _ := r.TryCreate("BTCUSDT", 70, nil, cfg)

	clock.Advance(3 * time.Hour)
	second, expired, ok := r.TryCreate("BTCUSDT", 90, nil, cfg)
	require.True(t, ok)
	require.NotNil(t, expired)
	assert.Equal(t, first.ID, expired.ID)
	assert.Equal(t, domain.SignalExpired, expired.Status)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRestore(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := r.Restore([]domain.Signal{
		{ID: "a", Symbol: "BTCUSDT", Status: domain.SignalActive, TriggeredAt: base, ExpiresAt: base.Add(4 * time.Hour)},
		{ID: "b", Symbol: "BTCUSDT", Status: domain.SignalActive, TriggeredAt: base.Add(time.Hour), ExpiresAt: base.Add(5 * time.Hour)},
		{ID: "c", Symbol: "ETHUSDT", Status: domain.SignalTraded, TriggeredAt: base},
	})
	assert.Equal(t, 2, n)
	s, ok := r.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "b", s.ID)
	_, ok = r.Get("ETHUSDT")
	assert.False(t, ok)
}
