package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pot-code/course-progress/internal/domain"
)

type issueArtifactRequest struct {
	EnrollmentID     string   `json:"enrollment_id"`
	VerificationCode string   `json:"verification_code"`
	Grade            *float64 `json:"grade,omitempty"`
}

type issueArtifactResponse struct {
	ImageURL string `json:"image_url"`
}

// HTTPIssuer client of the certificate rendering service
type HTTPIssuer struct {
	client *resty.Client
}

var _ Issuer = &HTTPIssuer{}

func NewHTTPIssuer(baseURL string, timeout time.Duration) *HTTPIssuer {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json")
	return &HTTPIssuer{client: client}
}

// IssueCertificateArtifact render failures and unreachable service both count as transient
func (hi *HTTPIssuer) IssueCertificateArtifact(ctx context.Context, enrollmentID, verificationCode string, grade *float64) (string, error) {
	result := new(issueArtifactResponse)
	resp, err := hi.client.R().
		SetContext(ctx).
		SetBody(&issueArtifactRequest{
			EnrollmentID:     enrollmentID,
			VerificationCode: verificationCode,
			Grade:            grade,
		}).
		SetResult(result).
		Post("/certificates")
	if err != nil {
		return "", fmt.Errorf("%w: certificate issuer: %s", domain.ErrTransient, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: certificate issuer answered %d: %s", domain.ErrTransient, resp.StatusCode(), resp.String())
	}
	if result.ImageURL == "" {
		return "", fmt.Errorf("certificate issuer returned no image url")
	}
	return result.ImageURL, nil
}
