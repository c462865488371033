package playback

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_OnTimeUpdate(t *testing.T) {
	policy := NewPolicy(10, time.Second)
	tests := []struct {
		name     string
		current  float64
		duration float64
		emit     bool
	}{
		{"sample boundary", 10.2, 120, true},
		{"same second again", 10.7, 120, false},
		{"between samples", 11.3, 120, false},
		{"next boundary", 20.0, 120, true},
		{"inside end window", 119.1, 120, true},
		{"end window once per second", 119.6, 120, false},
		{"unknown duration off boundary", 33, math.NaN(), false},
	}
	tracker := policy.NewTracker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := tracker.OnTimeUpdate(tt.current, tt.duration)
			if !tt.emit {
				assert.Nil(t, patch)
				return
			}
			require.NotNil(t, patch)
			assert.Equal(t, int(math.Floor(tt.current)), *patch.LastPlayed)
			assert.Nil(t, patch.Completed)
		})
	}
}

func TestTracker_EmitsAtMostOncePerSecond(t *testing.T) {
	tracker := NewPolicy(10, time.Second).NewTracker()
	emitted := 0
	// 250ms player ticks over a 60s video
	for ms := 0; ms <= 60000; ms += 250 {
		if tracker.OnTimeUpdate(float64(ms)/1000, 60) != nil {
			emitted++
		}
	}
	// seconds 0,10,...,50 and 59,60 inside the end window
	assert.Equal(t, 8, emitted)
}

func TestTracker_OnPause(t *testing.T) {
	tracker := NewPolicy(10, time.Second).NewTracker()
	patch := tracker.OnPause(37.9, 99.6)
	require.NotNil(t, patch)
	assert.Equal(t, 37, *patch.LastPlayed)
	assert.Equal(t, 100, *patch.VideoDuration)
	assert.Nil(t, patch.Completed)
}

func TestTracker_OnEnded(t *testing.T) {
	tracker := NewPolicy(10, time.Second).NewTracker()

	patch := tracker.OnEnded(42, math.Inf(1))
	require.NotNil(t, patch.Completed)
	assert.True(t, *patch.Completed)
	assert.Nil(t, patch.VideoDuration)
	assert.Equal(t, 42, *patch.LastPlayed)
}

func TestTracker_ResumePosition(t *testing.T) {
	stored := 95
	zero := 0

	tracker := NewPolicy(10, time.Second).NewTracker()
	pos, ok := tracker.ResumePosition(0.2, &stored)
	assert.True(t, ok)
	assert.Equal(t, 95.0, pos)
	_, ok = tracker.ResumePosition(0, &stored)
	assert.False(t, ok, "resume happens once")

	tracker = NewPolicy(10, time.Second).NewTracker()
	_, ok = tracker.ResumePosition(12, &stored)
	assert.False(t, ok, "user already scrubbed")

	tracker = NewPolicy(10, time.Second).NewTracker()
	_, ok = tracker.ResumePosition(0, nil)
	assert.False(t, ok)

	tracker = NewPolicy(10, time.Second).NewTracker()
	_, ok = tracker.ResumePosition(0, &zero)
	assert.False(t, ok)
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy(0, 0)
	assert.Equal(t, DefaultSampleInterval, p.SampleInterval)
	assert.Equal(t, DefaultEndWindow, p.EndWindow)
}

func TestTracker_ClampsOutOfRangeTimes(t *testing.T) {
	tracker := NewPolicy(10, time.Second).NewTracker()

	patch := tracker.OnEnded(1e20, 1e20)
	require.NotNil(t, patch)
	assert.Equal(t, math.MaxInt32, *patch.LastPlayed)
	assert.Nil(t, patch.VideoDuration)
	assert.True(t, *patch.Completed)

	patch = tracker.OnPause(math.Inf(1), math.Inf(1))
	assert.Equal(t, math.MaxInt32, *patch.LastPlayed)
	assert.Nil(t, patch.VideoDuration)

	patch = tracker.OnPause(-3, float64(math.MaxInt32))
	assert.Zero(t, *patch.LastPlayed)
	assert.Equal(t, math.MaxInt32, *patch.VideoDuration)
}
