package progress

import (
	"testing"

	"github.com/pot-code/course-progress/internal/course"
	"github.com/stretchr/testify/assert"
)

func TestEvaluateCascade_AllSubsets(t *testing.T) {
	lessons := []*course.LessonModel{
		{ID: "a1", ModuleID: "A", Order: 2},
		{ID: "b1", ModuleID: "B", Order: 1},
		{ID: "a2", ModuleID: "A", Order: 1},
	}

	for mask := 0; mask < 1<<len(lessons); mask++ {
		completed := make(map[string]bool)
		for i, l := range lessons {
			completed[l.ID] = mask&(1<<i) != 0
		}

		result := EvaluateCascade(lessons, completed)

		moduleA := completed["a1"] && completed["a2"]
		moduleB := completed["b1"]
		assert.Equal(t, moduleA, result.Modules["A"], "mask %03b", mask)
		assert.Equal(t, moduleB, result.Modules["B"], "mask %03b", mask)
		assert.Equal(t, moduleA && moduleB, result.CourseCompleted, "mask %03b", mask)
	}
}

func TestEvaluateCascade_ModuleOrder(t *testing.T) {
	lessons := []*course.LessonModel{
		{ID: "a1", ModuleID: "A"},
		{ID: "b1", ModuleID: "B"},
		{ID: "c1", ModuleID: "C"},
	}
	result := EvaluateCascade(lessons, map[string]bool{"a1": true, "c1": true})
	assert.Equal(t, []string{"A", "B", "C"}, result.ModuleOrder)
	assert.Equal(t, []string{"A", "C"}, result.CompletedModules())
	assert.False(t, result.CourseCompleted)
}

func TestEvaluateCascade_EmptyCourse(t *testing.T) {
	result := EvaluateCascade(nil, map[string]bool{})
	assert.False(t, result.CourseCompleted)
	assert.Empty(t, result.CompletedModules())
}
