package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pot-code/course-progress/internal/certificate"
	"github.com/pot-code/course-progress/internal/course"
	"github.com/pot-code/course-progress/internal/domain"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eligibilityAdapter answers the gate from the in-memory progress store
type eligibilityAdapter struct {
	repo *memoryRepository
}

func (ea *eligibilityAdapter) GetEligibility(ctx context.Context, enrollmentID string) (bool, *float64, error) {
	e, err := ea.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return false, nil, err
	}
	lessons, _ := ea.repo.ListLessonProgress(ctx, enrollmentID)
	var best *float64
	for _, lp := range lessons {
		if lp.Grade != nil && (best == nil || *lp.Grade > *best) {
			best = lp.Grade
		}
	}
	return e.Completed, best, nil
}

type certificateStore struct {
	mu    sync.Mutex
	certs map[string]*certificate.CertificateModel
}

func (cs *certificateStore) Create(ctx context.Context, cert *certificate.CertificateModel) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.certs[cert.EnrollmentID]; ok {
		return domain.ErrConflict
	}
	cs.certs[cert.EnrollmentID] = cert
	return nil
}

func (cs *certificateStore) FindByEnrollment(ctx context.Context, enrollmentID string) (*certificate.CertificateModel, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok := cs.certs[enrollmentID]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, certificate.ErrCertificateNotFound
}

func (cs *certificateStore) GetByVerificationCode(ctx context.Context, code string) (*certificate.VerificationModel, error) {
	return nil, certificate.ErrCertificateNotFound
}

func (cs *certificateStore) SetImageURL(ctx context.Context, certificateID, imageURL string) error {
	return nil
}

func (cs *certificateStore) ListPendingArtifacts(ctx context.Context, limit int) ([]*certificate.CertificateModel, error) {
	return nil, nil
}

func (cs *certificateStore) ListUncertifiedEnrollments(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

type noopIssuer struct{}

func (noopIssuer) IssueCertificateArtifact(ctx context.Context, enrollmentID, verificationCode string, grade *float64) (string, error) {
	return "https://certs.example.com/" + verificationCode, nil
}

type slowIssuer struct {
	release chan struct{}
}

func (si slowIssuer) IssueCertificateArtifact(ctx context.Context, enrollmentID, verificationCode string, grade *float64) (string, error) {
	<-si.release
	return "https://certs.example.com/" + verificationCode, nil
}

func TestScenario_SlowRendererDoesNotDelayCompletion(t *testing.T) {
	repo := newMemoryRepository()
	store := &certificateStore{certs: make(map[string]*certificate.CertificateModel)}
	registry := metrics.NewRegistry("scenario")
	issuer := slowIssuer{release: make(chan struct{})}
	gate := certificate.NewGate(store, &eligibilityAdapter{repo}, issuer,
		uuid.NewNanoIDGenerator(12), uuid.NewVerificationCodeGenerator(20), registry)
	catalog := &staticCatalog{lessons: []*course.LessonModel{
		{ID: "b-reading", CourseID: "c1", ModuleID: "B", Type: course.LessonTypeReading, Order: 1},
	}}
	uc := NewProgressUseCase(repo, catalog, NewMergePolicy(DefaultNearEndRatio), gate, uuid.NewNanoIDGenerator(12), validate.NewValidator("en"), registry)
	ctx := context.Background()

	e, err := uc.Enroll(ctx, "learner-1", "c1")
	require.NoError(t, err)

	start := time.Now()
	snapshot, err := uc.UpdateLessonProgress(ctx, e.ID, "b-reading", &ProgressPatch{Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, snapshot.Completed)
	assert.Less(t, time.Since(start), time.Second)

	cert, err := gate.GetByEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, cert.ArtifactReady)

	close(issuer.release)
	gate.Wait()
}

func TestScenario_TwoModulesIssueCertificate(t *testing.T) {
	repo := newMemoryRepository()
	store := &certificateStore{certs: make(map[string]*certificate.CertificateModel)}
	registry := metrics.NewRegistry("scenario")
	gate := certificate.NewGate(store, &eligibilityAdapter{repo}, noopIssuer{},
		uuid.NewNanoIDGenerator(12), uuid.NewVerificationCodeGenerator(20), registry)
	defer gate.Wait()
	catalog := &staticCatalog{lessons: []*course.LessonModel{
		{ID: "a-video", CourseID: "c1", ModuleID: "A", Type: course.LessonTypeVideo, Order: 1, DurationSeconds: 120},
		{ID: "b-reading", CourseID: "c1", ModuleID: "B", Type: course.LessonTypeReading, Order: 1},
	}}
	uc := NewProgressUseCase(repo, catalog, NewMergePolicy(DefaultNearEndRatio), gate, uuid.NewNanoIDGenerator(12), validate.NewValidator("en"), registry)
	ctx := context.Background()

	e, err := uc.Enroll(ctx, "learner-1", "c1")
	require.NoError(t, err)

	snapshot, err := uc.UpdateLessonProgress(ctx, e.ID, "a-video", &ProgressPatch{LastPlayed: intPtr(119), VideoDuration: intPtr(120)})
	require.NoError(t, err)
	assert.True(t, lessonState(snapshot, "a-video").Completed)
	assert.True(t, moduleState(snapshot, "A"))
	assert.False(t, snapshot.Completed)
	_, err = gate.GetByEnrollment(ctx, e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snapshot, err = uc.UpdateLessonProgress(ctx, e.ID, "b-reading", &ProgressPatch{ForceComplete: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, moduleState(snapshot, "B"))
	assert.True(t, snapshot.Completed)

	cert, err := gate.GetByEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, cert.VerificationCode, 20)
	assert.Nil(t, cert.Grade, "course has no graded assessment")

	// a retried cascade returns the same certificate
	again, err := gate.Issue(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.VerificationCode, again.VerificationCode)
}
