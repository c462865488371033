package playback

import (
	"math"
	"time"

	"github.com/pot-code/course-progress/internal/progress"
)

// default sampling parameters
const (
	DefaultSampleInterval = 10
	DefaultEndWindow      = time.Second
	// freshLoadThreshold a native position below this is a fresh load, not a user scrub
	freshLoadThreshold = 1.0
	// maxSeconds largest position or duration the store accepts
	maxSeconds = math.MaxInt32
)

// Policy decides which player events turn into progress reports
type Policy struct {
	SampleInterval int
	EndWindow      time.Duration
}

func NewPolicy(SampleInterval int, EndWindow time.Duration) *Policy {
	if SampleInterval < 1 {
		SampleInterval = DefaultSampleInterval
	}
	if EndWindow <= 0 {
		EndWindow = DefaultEndWindow
	}
	return &Policy{SampleInterval, EndWindow}
}

// NewTracker state for one opened lesson
func (p *Policy) NewTracker() *Tracker {
	return &Tracker{policy: p, lastSecond: -1}
}

// Tracker applies the policy to the event stream of one player. Not safe for concurrent use.
type Tracker struct {
	policy     *Policy
	lastSecond int
	resumed    bool
}

// OnTimeUpdate periodic coarse sampling, plus every second inside the end window
func (t *Tracker) OnTimeUpdate(current, duration float64) *progress.ProgressPatch {
	second := wholeSeconds(current)
	if second == t.lastSecond {
		return nil
	}
	nearEnd := knownDuration(duration) && duration-current <= t.policy.EndWindow.Seconds()
	if second%t.policy.SampleInterval != 0 && !nearEnd {
		return nil
	}
	t.lastSecond = second
	return positionPatch(second, duration)
}

// OnPause always reports, completion is left to the server side near-end rule
func (t *Tracker) OnPause(current, duration float64) *progress.ProgressPatch {
	second := wholeSeconds(current)
	t.lastSecond = second
	return positionPatch(second, duration)
}

// OnEnded completes the lesson even when the duration never became known
func (t *Tracker) OnEnded(current, duration float64) *progress.ProgressPatch {
	patch := positionPatch(wholeSeconds(current), duration)
	completed := true
	patch.Completed = &completed
	return patch
}

// ResumePosition seek target for a freshly loaded player, answered once per tracker
// so a later call never pulls back a user who is already scrubbing
func (t *Tracker) ResumePosition(native float64, stored *int) (float64, bool) {
	if t.resumed {
		return 0, false
	}
	t.resumed = true
	if native >= freshLoadThreshold || stored == nil || *stored <= 0 {
		return 0, false
	}
	return float64(*stored), true
}

func positionPatch(second int, duration float64) *progress.ProgressPatch {
	patch := &progress.ProgressPatch{LastPlayed: &second}
	if knownDuration(duration) {
		d := int(math.Round(duration))
		patch.VideoDuration = &d
	}
	return patch
}

func wholeSeconds(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v >= maxSeconds {
		return maxSeconds
	}
	return int(math.Floor(v))
}

// players report NaN before metadata loads and +Inf for streams
func knownDuration(d float64) bool {
	return d > 0 && d <= maxSeconds
}
