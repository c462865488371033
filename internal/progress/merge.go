package progress

import (
	"time"

	"github.com/pot-code/course-progress/internal/course"
)

// DefaultNearEndRatio share of a video that counts as watched to the end
const DefaultNearEndRatio = 0.98

// MergePolicy folds a patch into the stored lesson state
type MergePolicy struct {
	NearEndRatio float64
}

// MergeResult outcome of one merge
type MergeResult struct {
	Next *LessonProgressModel
	// Triggered the patch satisfied a completion trigger on its own
	Triggered bool
	// BecameComplete completed went false to true in this merge
	BecameComplete bool
}

func NewMergePolicy(NearEndRatio float64) *MergePolicy {
	if NearEndRatio <= 0 || NearEndRatio > 1 {
		NearEndRatio = DefaultNearEndRatio
	}
	return &MergePolicy{NearEndRatio}
}

// Merge apply patch to current. The result never clears completion, never shrinks the
// known duration and never rewinds the position unless the patch completes the lesson.
func (mp *MergePolicy) Merge(current *LessonProgressModel, patch *ProgressPatch, lessonType course.LessonType, at time.Time) *MergeResult {
	next := *current

	if d := patch.VideoDuration; d != nil {
		if next.VideoDurationSeconds == nil || *d > *next.VideoDurationSeconds {
			duration := *d
			next.VideoDurationSeconds = &duration
		}
	}

	triggered := mp.isCompletionTrigger(&next, patch, lessonType)

	if p := patch.LastPlayed; p != nil && (*p >= next.LastPlayedSeconds || triggered) {
		next.LastPlayedSeconds = *p
	}

	result := &MergeResult{Next: &next, Triggered: triggered}
	if triggered && !next.Completed {
		completedAt := at
		next.Completed = true
		next.CompletedAt = &completedAt
		result.BecameComplete = true
	}

	if g := patch.Grade; g != nil && (next.Grade == nil || *g > *next.Grade) {
		grade := *g
		next.Grade = &grade
	}

	updatedAt := at
	next.UpdatedAt = &updatedAt
	return result
}

// next already carries the widened duration
func (mp *MergePolicy) isCompletionTrigger(next *LessonProgressModel, patch *ProgressPatch, lessonType course.LessonType) bool {
	if patch.Completed != nil && *patch.Completed {
		return true
	}
	if patch.ForceComplete != nil && *patch.ForceComplete {
		return true
	}
	if lessonType != course.LessonTypeVideo || patch.LastPlayed == nil {
		return false
	}
	if next.VideoDurationSeconds == nil || *next.VideoDurationSeconds <= 0 {
		return false
	}
	return float64(*patch.LastPlayed) >= float64(*next.VideoDurationSeconds)*mp.NearEndRatio
}
