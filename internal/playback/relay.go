package playback

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/progress"
	"go.uber.org/zap"
)

// player event types
const (
	EventLoaded     = "loaded"
	EventTimeUpdate = "timeupdate"
	EventPause      = "pause"
	EventEnded      = "ended"
)

// PlayerEvent raw media event streamed by a thin player
type PlayerEvent struct {
	Type         string  `json:"type"`
	EnrollmentID string  `json:"enrollment_id"`
	LessonID     string  `json:"lesson_id"`
	CurrentTime  float64 `json:"current_time"`
	Duration     float64 `json:"duration"`
}

// RelayMessage server to player message
type RelayMessage struct {
	Type     string  `json:"type"`
	LessonID string  `json:"lesson_id,omitempty"`
	Position float64 `json:"position,omitempty"`
	Error    string  `json:"error,omitempty"`
}

var errForeignEnrollment = errors.New("enrollment belongs to another learner")

// Relay runs the sampling policy on the server for players that stream media events
// instead of progress patches. Failed reports are logged and dropped, the next sample retries.
type Relay struct {
	Policy          *Policy
	ProgressUseCase progress.ProgressUseCase
	Metrics         *metrics.Registry
	writeWait       time.Duration
}

func NewRelay(Policy *Policy, ProgressUseCase progress.ProgressUseCase, Metrics *metrics.Registry) *Relay {
	return &Relay{
		Policy:          Policy,
		ProgressUseCase: ProgressUseCase,
		Metrics:         Metrics,
		writeWait:       10 * time.Second,
	}
}

type session struct {
	relay     *Relay
	ctx       context.Context
	learnerID string
	trackers  map[string]*Tracker
	owned     map[string]bool
}

// Open start a session for learnerID, the returned handler processes one message per call
func (r *Relay) Open(ctx context.Context, learnerID string) func(conn *websocket.Conn) error {
	s := &session{
		relay:     r,
		ctx:       ctx,
		learnerID: learnerID,
		trackers:  make(map[string]*Tracker),
		owned:     make(map[string]bool),
	}
	return s.next
}

func (s *session) next(conn *websocket.Conn) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	logger := logging.ExtractLoggerFromContext(s.ctx)

	event := new(PlayerEvent)
	if err := json.Unmarshal(data, event); err != nil {
		logger.Debug("drop malformed player event", zap.Error(err))
		return s.reply(conn, &RelayMessage{Type: "error", Error: "malformed event"})
	}
	reply, err := s.handle(event)
	if err != nil {
		logger.Warn("drop player event",
			zap.String("event.type", event.Type),
			zap.String("enrollment.id", event.EnrollmentID),
			zap.String("lesson.id", event.LessonID),
			zap.Error(err))
		return nil
	}
	if reply != nil {
		return s.reply(conn, reply)
	}
	return nil
}

func (s *session) handle(event *PlayerEvent) (*RelayMessage, error) {
	if err := s.authorize(event.EnrollmentID); err != nil {
		return nil, err
	}
	tracker := s.tracker(event.EnrollmentID, event.LessonID)

	var (
		patch   *progress.ProgressPatch
		trigger = event.Type
	)
	switch event.Type {
	case EventLoaded:
		return s.resume(tracker, event)
	case EventTimeUpdate:
		patch = tracker.OnTimeUpdate(event.CurrentTime, event.Duration)
	case EventPause:
		patch = tracker.OnPause(event.CurrentTime, event.Duration)
	case EventEnded:
		patch = tracker.OnEnded(event.CurrentTime, event.Duration)
	default:
		return nil, errors.New("unknown event type")
	}
	if patch == nil {
		return nil, nil
	}

	s.relay.Metrics.PlaybackReportsSent.WithLabelValues(trigger).Inc()
	_, err := s.relay.ProgressUseCase.UpdateLessonProgress(s.ctx, event.EnrollmentID, event.LessonID, patch)
	return nil, err
}

func (s *session) resume(tracker *Tracker, event *PlayerEvent) (*RelayMessage, error) {
	lp, err := s.relay.ProgressUseCase.GetLessonProgress(s.ctx, event.EnrollmentID, event.LessonID)
	if err != nil {
		return nil, err
	}
	var stored *int
	if lp.UpdatedAt != nil {
		stored = &lp.LastPlayedSeconds
	}
	position, ok := tracker.ResumePosition(event.CurrentTime, stored)
	if !ok {
		return nil, nil
	}
	return &RelayMessage{Type: "seek", LessonID: event.LessonID, Position: position}, nil
}

// authorize checks ownership once per enrollment and connection
func (s *session) authorize(enrollmentID string) error {
	if s.owned[enrollmentID] {
		return nil
	}
	e, err := s.relay.ProgressUseCase.GetEnrollment(s.ctx, enrollmentID)
	if err != nil {
		return err
	}
	if e.LearnerID != s.learnerID {
		return errForeignEnrollment
	}
	s.owned[enrollmentID] = true
	return nil
}

func (s *session) tracker(enrollmentID, lessonID string) *Tracker {
	key := enrollmentID + "/" + lessonID
	t, ok := s.trackers[key]
	if !ok {
		t = s.relay.Policy.NewTracker()
		s.trackers[key] = t
	}
	return t
}

func (s *session) reply(conn *websocket.Conn, msg *RelayMessage) error {
	conn.SetWriteDeadline(time.Now().Add(s.relay.writeWait))
	return conn.WriteJSON(msg)
}
