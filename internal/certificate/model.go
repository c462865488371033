package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/pot-code/course-progress/internal/domain"
)

var (
	ErrCertificateNotFound = fmt.Errorf("certificate %w", domain.ErrNotFound)
	ErrNotEligible         = fmt.Errorf("%w: enrollment has not completed its course", domain.ErrInvalidArgument)
)

// CertificateModel issued at most once per enrollment
type CertificateModel struct {
	ID               string     `json:"id"`
	EnrollmentID     string     `json:"enrollment_id"`
	VerificationCode string     `json:"verification_code"`
	IssuedAt         *time.Time `json:"-"`
	Grade            *float64   `json:"grade,omitempty"`
	ImageURL         *string    `json:"image_url,omitempty"`
	ArtifactReady    bool       `json:"artifact_ready"`
	Timestamp        int64      `json:"timestamp"`
}

// VerificationModel public view of a certificate, display name and course title are the only personal data
type VerificationModel struct {
	VerificationCode string     `json:"verification_code"`
	LearnerName      string     `json:"learner_name"`
	CourseTitle      string     `json:"course_title"`
	Grade            *float64   `json:"grade,omitempty"`
	ImageURL         *string    `json:"image_url,omitempty"`
	ArtifactReady    bool       `json:"artifact_ready"`
	IssuedAt         *time.Time `json:"-"`
	Timestamp        int64      `json:"timestamp"`
}

type CertificateRepository interface {
	// Create fails with domain.ErrConflict when the enrollment or the verification code is taken
	Create(ctx context.Context, cert *CertificateModel) error
	FindByEnrollment(ctx context.Context, enrollmentID string) (*CertificateModel, error)
	GetByVerificationCode(ctx context.Context, code string) (*VerificationModel, error)
	SetImageURL(ctx context.Context, certificateID, imageURL string) error
	ListPendingArtifacts(ctx context.Context, limit int) ([]*CertificateModel, error)
	ListUncertifiedEnrollments(ctx context.Context, limit int) ([]string, error)
}

// EligibilityReader completion state of an enrollment and its best assessment grade
type EligibilityReader interface {
	GetEligibility(ctx context.Context, enrollmentID string) (completed bool, grade *float64, err error)
}

// Issuer renders and stores the visual certificate, returning where it can be fetched
type Issuer interface {
	IssueCertificateArtifact(ctx context.Context, enrollmentID, verificationCode string, grade *float64) (string, error)
}

type CertificateUseCase interface {
	Issue(ctx context.Context, enrollmentID string) (*CertificateModel, error)
	GetByEnrollment(ctx context.Context, enrollmentID string) (*CertificateModel, error)
	Verify(ctx context.Context, code string) (*VerificationModel, error)
}
