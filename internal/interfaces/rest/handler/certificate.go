package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/certificate"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/progress"
)

type CertificateHandler struct {
	certificateUseCase certificate.CertificateUseCase
	progressUseCase    progress.ProgressUseCase
	jwtUtil            *auth.JWTUtil
}

func NewCertificateHandler(
	CertificateUseCase certificate.CertificateUseCase,
	ProgressUseCase progress.ProgressUseCase,
	JWTUtil *auth.JWTUtil,
) *CertificateHandler {
	return &CertificateHandler{CertificateUseCase, ProgressUseCase, JWTUtil}
}

// HandleGetEnrollmentCertificate artifact_ready stays false until the issuer delivered the image
func (ch *CertificateHandler) HandleGetEnrollmentCertificate(c echo.Context) error {
	enrollmentID := c.Param("enrollment_id")
	if err := ensureOwner(c, ch.progressUseCase, ch.jwtUtil, enrollmentID); err != nil {
		return err
	}

	cert, err := ch.certificateUseCase.GetByEnrollment(c.Request().Context(), enrollmentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cert)
}

// HandleVerify public lookup, no authentication
func (ch *CertificateHandler) HandleVerify(c echo.Context) error {
	v, err := ch.certificateUseCase.Verify(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}
