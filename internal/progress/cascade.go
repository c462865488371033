package progress

import "github.com/pot-code/course-progress/internal/course"

// CascadeResult derived completion of every module and of the course
type CascadeResult struct {
	Modules         map[string]bool
	ModuleOrder     []string
	CourseCompleted bool
}

// CompletedModules ids of the completed modules in course order
func (cr *CascadeResult) CompletedModules() []string {
	var ids []string
	for _, id := range cr.ModuleOrder {
		if cr.Modules[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// EvaluateCascade a module is complete iff all of its lessons are, the course iff all of its modules are.
// Lesson order plays no part. A course without lessons is never complete.
func EvaluateCascade(lessons []*course.LessonModel, completed map[string]bool) *CascadeResult {
	result := &CascadeResult{Modules: make(map[string]bool)}
	for _, l := range lessons {
		done, seen := result.Modules[l.ModuleID]
		if !seen {
			result.ModuleOrder = append(result.ModuleOrder, l.ModuleID)
			done = true
		}
		result.Modules[l.ModuleID] = done && completed[l.ID]
	}

	result.CourseCompleted = len(result.Modules) > 0
	for _, done := range result.Modules {
		result.CourseCompleted = result.CourseCompleted && done
	}
	return result
}
