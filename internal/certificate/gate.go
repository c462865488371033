package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pot-code/course-progress/internal/domain"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// maxCodeAttempts bounds regeneration of a colliding verification code
const maxCodeAttempts = 3

// DefaultRenderTimeout bound of one background artifact rendering
const DefaultRenderTimeout = time.Minute

// Gate decides that a certificate exists for a completed enrollment. The unique
// constraint on enrollment_id makes issuance at-most-once without application locks.
type Gate struct {
	Repository    CertificateRepository
	Eligibility   EligibilityReader
	Issuer        Issuer
	IDGenerator   uuid.Generator
	CodeGenerator uuid.Generator
	Metrics       *metrics.Registry
	RenderTimeout time.Duration

	renders sync.WaitGroup
}

var _ CertificateUseCase = &Gate{}

func NewGate(
	Repository CertificateRepository,
	Eligibility EligibilityReader,
	Issuer Issuer,
	IDGenerator uuid.Generator,
	CodeGenerator uuid.Generator,
	Metrics *metrics.Registry,
) *Gate {
	return &Gate{
		Repository:    Repository,
		Eligibility:   Eligibility,
		Issuer:        Issuer,
		IDGenerator:   IDGenerator,
		CodeGenerator: CodeGenerator,
		Metrics:       Metrics,
		RenderTimeout: DefaultRenderTimeout,
	}
}

// OnCourseCompleted completion hook of the progress cascade
func (g *Gate) OnCourseCompleted(ctx context.Context, enrollmentID string) error {
	_, err := g.Issue(ctx, enrollmentID)
	return err
}

// Issue returns the enrollment's certificate, creating it on the first call. The artifact
// of a new certificate is rendered in the background, so the result reports it as not ready.
func (g *Gate) Issue(ctx context.Context, enrollmentID string) (*CertificateModel, error) {
	return g.issue(ctx, enrollmentID, g.renderInBackground)
}

func (g *Gate) issue(ctx context.Context, enrollmentID string, render func(ctx context.Context, cert *CertificateModel)) (*CertificateModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "Gate.Issue", "service")
	defer apmSpan.End()

	existing, err := g.Repository.FindByEnrollment(ctx, enrollmentID)
	if err == nil {
		return withTimestamp(existing), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	completed, grade, err := g.Eligibility.GetEligibility(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !completed {
		return nil, ErrNotEligible
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		cert, err := g.newCertificate(enrollmentID, grade)
		if err != nil {
			return nil, err
		}

		err = g.Repository.Create(ctx, cert)
		if err == nil {
			g.Metrics.CertificatesIssued.Inc()
			render(ctx, cert)
			return withTimestamp(cert), nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}

		// either a concurrent call issued it or the code collided
		existing, err := g.Repository.FindByEnrollment(ctx, enrollmentID)
		if err == nil {
			return withTimestamp(existing), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("issue certificate for %s: no unique verification code after %d attempts", enrollmentID, maxCodeAttempts)
}

func (g *Gate) newCertificate(enrollmentID string, grade *float64) (*CertificateModel, error) {
	id, err := g.IDGenerator.Generate()
	if err != nil {
		return nil, err
	}
	code, err := g.CodeGenerator.Generate()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &CertificateModel{
		ID:               id,
		EnrollmentID:     enrollmentID,
		VerificationCode: code,
		IssuedAt:         &now,
		Grade:            grade,
	}, nil
}

// RenderArtifact ask the issuer for the visual certificate. Failures leave the row
// without an image and are picked up again by the sweeper.
func (g *Gate) RenderArtifact(ctx context.Context, cert *CertificateModel) bool {
	logger := logging.ExtractLoggerFromContext(ctx)

	url, err := g.Issuer.IssueCertificateArtifact(ctx, cert.EnrollmentID, cert.VerificationCode, cert.Grade)
	if err == nil {
		err = g.Repository.SetImageURL(ctx, cert.ID, url)
	}
	if err != nil {
		g.Metrics.ArtifactFailures.Inc()
		logger.Warn("certificate artifact not ready",
			zap.String("certificate.id", cert.ID),
			zap.String("enrollment.id", cert.EnrollmentID),
			zap.Error(err))
		return false
	}
	cert.ImageURL = &url
	cert.ArtifactReady = true
	return true
}

// renderInBackground the rendering outlives the request that completed the course
func (g *Gate) renderInBackground(ctx context.Context, cert *CertificateModel) {
	copied := *cert
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.RenderTimeout)
	g.renders.Add(1)
	go func() {
		defer g.renders.Done()
		defer cancel()
		g.RenderArtifact(ctx, &copied)
	}()
}

// Wait blocks until background renderings have finished
func (g *Gate) Wait() {
	g.renders.Wait()
}

func (g *Gate) GetByEnrollment(ctx context.Context, enrollmentID string) (*CertificateModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "Gate.GetByEnrollment", "service")
	defer apmSpan.End()

	cert, err := g.Repository.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return withTimestamp(cert), nil
}

func (g *Gate) Verify(ctx context.Context, code string) (*VerificationModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "Gate.Verify", "service")
	defer apmSpan.End()

	v, err := g.Repository.GetByVerificationCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	v.ArtifactReady = v.ImageURL != nil
	if v.IssuedAt != nil {
		v.Timestamp = v.IssuedAt.UnixNano() / 1e6 // milliseconds
	}
	return v, nil
}

func withTimestamp(cert *CertificateModel) *CertificateModel {
	cert.ArtifactReady = cert.ImageURL != nil
	if cert.IssuedAt != nil {
		cert.Timestamp = cert.IssuedAt.UnixNano() / 1e6 // milliseconds
	}
	return cert
}
