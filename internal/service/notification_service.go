package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

const (
	notificationBufferSize = 16
	// relayedWindow is how many remote notification ids are remembered so a
	// notification arriving over both redis and NATS streams once.
	relayedWindow = 1024
)

// ErrEmptyNotification indicates the message was blank after sanitizing.
var ErrEmptyNotification = errors.New("notification message empty after sanitization")

// ErrNotificationNotFound indicates the notification does not exist for the student.
var ErrNotificationNotFound = errors.New("notification not found")

// Notifier delivers a learner-facing message. Grading workflows depend on
// this narrow interface and never fail because of it.
type Notifier interface {
	Notify(ctx context.Context, studentID uint, kind, message string) error
}

// NotificationService persists notifications and fans them out over redis
// pub/sub, NATS and server-sent event streams.
type NotificationService interface {
	Notifier
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, studentID uint, unreadOnly bool, limit, offset int) (dto.NotificationListResponse, error)
	MarkRead(ctx context.Context, id, studentID uint) (dto.NotificationResponse, error)
	Subscribe(studentID uint) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo         repository.NotificationRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	sanitizer    *bluemonday.Policy
	broker       *notificationBroker
	relayed      *recentIDs
	nodeID       string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:         repo,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		validator:    validate,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/notification"),
		sanitizer:    bluemonday.StrictPolicy(),
		broker: &notificationBroker{
			subscribers: make(map[uint]map[chan dto.NotificationResponse]struct{}),
		},
		relayed: newRecentIDs(relayedWindow),
		nodeID:  uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *notificationService) Notify(ctx context.Context, studentID uint, kind, message string) error {
	_, err := s.Publish(ctx, dto.NotificationCreateRequest{StudentID: studentID, Type: kind, Message: message})
	return err
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, ErrEmptyNotification
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.Int64("notification.student_id", int64(payload.StudentID)),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		StudentID: payload.StudentID,
		Type:      payload.Type,
		Message:   cleanMessage,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		observability.NotificationFailures().WithLabelValues("persist").Inc()
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.broker.broadcast(response.StudentID, response)
	if err := s.publish(spanCtx, response); err != nil {
		observability.NotificationFailures().WithLabelValues("fanout").Inc()
		s.logger.Warn().Err(err).Msg("failed to publish notification to broker")
	}

	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, studentID uint, unreadOnly bool, limit, offset int) (dto.NotificationListResponse, error) {
	if studentID == 0 {
		return dto.NotificationListResponse{}, ErrStudentRequired
	}

	notifications, err := s.repo.ListByStudent(ctx, studentID, unreadOnly, limit, offset)
	if err != nil {
		return dto.NotificationListResponse{}, err
	}

	unread, err := s.repo.CountUnread(ctx, studentID)
	if err != nil {
		return dto.NotificationListResponse{}, err
	}

	return dto.NotificationListResponse{
		Items:  dto.NewNotificationResponseSlice(notifications),
		Unread: unread,
	}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, studentID uint) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.student_id", int64(studentID)),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, studentID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		return dto.NotificationResponse{}, err
	}

	notification.Read = true
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) Subscribe(studentID uint) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(studentID, channel)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(studentID, channel)
			observability.SSEClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	// Every node needs every event for its own streams, so no queue group.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

// handleEvent relays notifications created on other nodes to local streams.
func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	notification := event.Notification
	if notification.ID != 0 && !s.relayed.add(notification.ID) {
		return
	}
	if notification.Type == "" {
		notification.Type = "generic"
	}

	s.broker.broadcast(notification.StudentID, notification)
}

func (b *notificationBroker) subscribe(studentID uint, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[studentID]; !exists {
		b.subscribers[studentID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[studentID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(studentID uint, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[studentID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, studentID)
		}
	}
}

// broadcast never blocks; slow subscribers miss events.
func (b *notificationBroker) broadcast(studentID uint, notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[studentID] {
		select {
		case ch <- notification:
		default:
		}
	}
}

// recentIDs is a fixed-size window of ids, evicting the oldest first.
type recentIDs struct {
	mu    sync.Mutex
	seen  map[uint]struct{}
	order []uint
	next  int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{seen: make(map[uint]struct{}, size), order: make([]uint, 0, size)}
}

// add reports false when id is already in the window.
func (r *recentIDs) add(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return false
	}
	if len(r.order) < cap(r.order) {
		r.order = append(r.order, id)
	} else {
		delete(r.seen, r.order[r.next])
		r.order[r.next] = id
		r.next = (r.next + 1) % len(r.order)
	}
	r.seen[id] = struct{}{}
	return true
}

// notifyAsync delivers a notification without blocking or failing the caller.
func notifyAsync(run func(func()), notifier Notifier, logger zerolog.Logger, ctx context.Context, studentID uint, kind, message string) {
	if notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	run(func() {
		if err := notifier.Notify(detached, studentID, kind, message); err != nil {
			observability.NotificationFailures().WithLabelValues("notify").Inc()
			logger.Warn().Err(err).Uint("student_id", studentID).Str("type", kind).Msg("failed to deliver notification")
		}
	})
}

func runAsync(fn func()) {
	go fn()
}
