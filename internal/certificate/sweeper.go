package certificate

import (
	"context"

	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically finishes what the request path left undone: certificates for
// completed enrollments whose gate call failed and artifacts the issuer did not deliver.
type Sweeper struct {
	Gate       *Gate
	Repository CertificateRepository
	Batch      int
	logger     *zap.Logger
	cron       *cron.Cron
}

func NewSweeper(Gate *Gate, Repository CertificateRepository, Batch int, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		Gate:       Gate,
		Repository: Repository,
		Batch:      Batch,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start schedule the sweep, schedule uses the robfig/cron syntax including descriptors like "@every 5m"
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("certificate sweeper started", zap.String("schedule", schedule))
	return nil
}

// Stop returns a context done once a running sweep has finished
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) render(ctx context.Context, cert *CertificateModel) {
	s.Gate.RenderArtifact(ctx, cert)
}

// Sweep one pass, returns the number of certificates issued and artifacts rendered
func (s *Sweeper) Sweep(ctx context.Context) (issued int, rendered int) {
	ctx = logging.SetLoggerInContext(ctx, s.logger)

	enrollments, err := s.Repository.ListUncertifiedEnrollments(ctx, s.Batch)
	if err != nil {
		s.logger.Error("list uncertified enrollments", zap.Error(err))
	}
	for _, id := range enrollments {
		if _, err := s.Gate.issue(ctx, id, s.render); err != nil {
			s.logger.Error("issue certificate", zap.String("enrollment.id", id), zap.Error(err))
			continue
		}
		issued++
	}

	pending, err := s.Repository.ListPendingArtifacts(ctx, s.Batch)
	if err != nil {
		s.logger.Error("list pending artifacts", zap.Error(err))
		return
	}
	for _, cert := range pending {
		if s.Gate.RenderArtifact(ctx, cert) {
			rendered++
		}
	}

	if issued > 0 || rendered > 0 || len(pending) > 0 {
		s.logger.Info("certificate sweep finished",
			zap.Int("issued", issued),
			zap.Int("rendered", rendered),
			zap.Int("pending", len(pending)))
	}
	return
}
