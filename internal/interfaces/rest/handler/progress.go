package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/domain"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/progress"
)

type enrollRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

type ProgressHandler struct {
	progressUseCase progress.ProgressUseCase
	validator       validate.Validator
	jwtUtil         *auth.JWTUtil
}

func NewProgressHandler(
	ProgressUseCase progress.ProgressUseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *ProgressHandler {
	handler := &ProgressHandler{ProgressUseCase, Validator, JWTUtil}
	return handler
}

func (ph *ProgressHandler) HandleEnroll(c echo.Context) error {
	claims := ph.jwtUtil.GetContextToken(c)
	req := new(enrollRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTStandardError(http.StatusBadRequest, "malformed request body"))
	}
	if err := ph.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", err))
	}

	enrollment, err := ph.progressUseCase.Enroll(c.Request().Context(), claims.UID, req.CourseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, enrollment)
}

func (ph *ProgressHandler) HandleGetProgress(c echo.Context) error {
	enrollmentID := c.Param("enrollment_id")
	if err := ensureOwner(c, ph.progressUseCase, ph.jwtUtil, enrollmentID); err != nil {
		return err
	}

	snapshot, err := ph.progressUseCase.GetProgress(c.Request().Context(), enrollmentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (ph *ProgressHandler) HandleUpdateLessonProgress(c echo.Context) error {
	enrollmentID := c.Param("enrollment_id")
	lessonID := c.Param("lesson_id")
	if err := ensureOwner(c, ph.progressUseCase, ph.jwtUtil, enrollmentID); err != nil {
		return err
	}
	patch := new(progress.ProgressPatch)
	if err := c.Bind(patch); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTStandardError(http.StatusBadRequest, "malformed request body"))
	}
	if err := ph.validator.Struct(patch); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", err))
	}

	snapshot, err := ph.progressUseCase.UpdateLessonProgress(c.Request().Context(), enrollmentID, lessonID, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot)
}

// ensureOwner enrollments of other learners are reported as missing
func ensureOwner(c echo.Context, uc progress.ProgressUseCase, ju *auth.JWTUtil, enrollmentID string) error {
	claims := ju.GetContextToken(c)
	enrollment, err := uc.GetEnrollment(c.Request().Context(), enrollmentID)
	if err != nil {
		return err
	}
	if claims == nil || enrollment.LearnerID != claims.UID {
		return fmt.Errorf("enrollment %w", domain.ErrNotFound)
	}
	return nil
}
