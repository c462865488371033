package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Position *int   `json:"lastPlayed" validate:"omitempty,min=0"`
	CourseID string `json:"course_id" validate:"required"`
}

func TestStruct_UsesJSONNames(t *testing.T) {
	v := NewValidator("en")
	negative := -1

	errs := v.Struct(&sample{Position: &negative})
	require.Len(t, errs, 2)
	assert.Equal(t, "lastPlayed", errs[0].Domain)
	assert.Equal(t, "course_id", errs[1].Domain)
	assert.Contains(t, errs.Error(), "course_id")
}

func TestStruct_Valid(t *testing.T) {
	v := NewValidator("en")
	assert.Nil(t, v.Struct(&sample{CourseID: "c1"}))
}

func TestAllEmpty(t *testing.T) {
	v := NewValidator("en")
	var a, b *int
	fe := v.AllEmpty([]string{"a", "b"}, a, b)
	require.NotNil(t, fe)
	assert.Equal(t, "a,b", fe.Domain)

	zero := 0
	assert.Nil(t, v.AllEmpty([]string{"a", "b"}, a, &zero))
}

func TestEmpty(t *testing.T) {
	v := NewValidator("zh")
	assert.Len(t, v.Empty("code", ""), 1)
	assert.Nil(t, v.Empty("code", "ABC"))
}
