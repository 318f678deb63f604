package runner_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/runner"
)

type fireLog struct {
	mu   sync.Mutex
	gens []uint64
}

func (f *fireLog) record(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gens = append(f.gens, gen)
}

func (f *fireLog) all() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.gens...)
}

func TestGuard_FiresOnce(t *testing.T) {
	var fl fireLog
	g := runner.NewGuard(10*time.Millisecond, fl.record)
	g.Rearm()
	require.True(t, g.Armed())

	require.Eventually(t, func() bool { return len(fl.all()) == 1 }, time.Second, time.Millisecond)

	gen := fl.all()[0]
	assert.True(t, g.Fire(gen))
	assert.False(t, g.Fire(gen))
	assert.True(t, g.Fired())
	assert.False(t, g.Armed())

	// A fired guard cannot be rearmed.
	g.Rearm()
	assert.False(t, g.Armed())
}

func TestGuard_RearmInvalidatesOlderDeadline(t *testing.T) {
	var fl fireLog
	g := runner.NewGuard(time.Hour, fl.record)

	g.Rearm()
	g.Rearm()

	assert.False(t, g.Fire(1), "first generation was replaced")
	assert.True(t, g.Fire(2))
}

func TestGuard_DisarmRejectsPendingFire(t *testing.T) {
	var fl fireLog
	g := runner.NewGuard(5*time.Millisecond, fl.record)

	g.Rearm()
	require.Eventually(t, func() bool { return len(fl.all()) == 1 }, time.Second, time.Millisecond)

	// The timer already ran, but the owner disarmed before handling it.
	g.Disarm()
	assert.False(t, g.Fire(fl.all()[0]))
	assert.False(t, g.Fired())
}

func TestGuard_DisarmStopsTimer(t *testing.T) {
	var fl fireLog
	g := runner.NewGuard(20*time.Millisecond, fl.record)

	g.Rearm()
	g.Disarm()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fl.all())
}

func TestReconciler(t *testing.T) {
	tests := []struct {
		name     string
		events   []domain.Event
		expected domain.Classification
		winner   string
	}{
		{
			name:     "nothing classified",
			events:   []domain.Event{{Source: "socket"}, {Source: "push", Alcohol: domain.Undetermined}},
			expected: domain.Undetermined,
		},
		{
			name: "first wins over later disagreement",
			events: []domain.Event{
				{Source: "push", Alcohol: domain.Normal},
				{Source: "socket", Alcohol: domain.Abnormal},
			},
			expected: domain.Normal,
			winner:   "push",
		},
		{
			name: "undetermined does not win",
			events: []domain.Event{
				{Source: "push", Alcohol: domain.Undetermined},
				{Source: "socket", Alcohol: domain.Abnormal},
			},
			expected: domain.Abnormal,
			winner:   "socket",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runner.NewReconciler()
			wins := 0
			for _, ev := range tt.events {
				if _, won := r.Offer(ev); won {
					wins++
				}
			}

			assert.Equal(t, tt.expected, r.Result())
			assert.Equal(t, tt.winner, r.Winner())
			assert.Equal(t, tt.expected.Resolved(), r.Resolved())
			assert.LessOrEqual(t, wins, 1)
		})
	}
}
