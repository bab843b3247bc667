package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/streak"
)

const streakWriteAttempts = 3

// ErrNoOpenSession indicates there is no attendance session to end.
var ErrNoOpenSession = errors.New("no open attendance session")

// StreakConfig tunes the streak service.
type StreakConfig struct {
	Location       *time.Location
	FreezeTTL      time.Duration
	LeaderboardKey string
}

// StreakService tracks daily activity streaks, freezes and attendance sessions.
type StreakService interface {
	ActivityTracker
	Get(ctx context.Context, studentID uint) (dto.StreakResponse, error)
	GrantFreeze(ctx context.Context, payload dto.FreezeGrantRequest, actor ActivityActor) (dto.FreezeResponse, error)
	StartSession(ctx context.Context, studentID uint) (dto.SessionResponse, error)
	EndSession(ctx context.Context, studentID uint) (dto.SessionResponse, error)
	WeeklyReport(ctx context.Context, studentID uint, weekOf time.Time) (streak.WeeklyReport, error)
	Leaderboard(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error)
	Badges(ctx context.Context, studentID uint) ([]dto.BadgeResponse, error)
}

// MilestoneEvent is published when a learner reaches a streak milestone.
type MilestoneEvent struct {
	StudentID     uint `json:"student_id"`
	Milestone     int  `json:"milestone"`
	CurrentStreak int  `json:"current_streak"`
}

type streakService struct {
	repo      repository.StreakRepository
	students  repository.StudentRepository
	redis     *redis.Client
	validator *validator.Validate
	notifier  Notifier
	publisher events.Publisher
	activity  ActivityRecorder
	config    StreakConfig
	logger    zerolog.Logger
	now       func() time.Time
	async     func(func())
}

// NewStreakService constructs the streak service. A nil redis client makes
// the leaderboard read from the database.
func NewStreakService(repo repository.StreakRepository, students repository.StudentRepository, redisClient *redis.Client, validate *validator.Validate, notifier Notifier, publisher events.Publisher, activity ActivityRecorder, cfg StreakConfig, logger zerolog.Logger) StreakService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LeaderboardKey == "" {
		cfg.LeaderboardKey = "streaks:leaderboard"
	}
	if publisher == nil {
		publisher = events.Nop()
	}
	return &streakService{
		repo:      repo,
		students:  students,
		redis:     redisClient,
		validator: validate,
		notifier:  notifier,
		publisher: publisher,
		activity:  activity,
		config:    cfg,
		logger:    logger.With().Str("component", "streak_service").Logger(),
		now:       time.Now,
		async:     runAsync,
	}
}

func (s *streakService) Get(ctx context.Context, studentID uint) (dto.StreakResponse, error) {
	record, err := s.repo.GetOrCreate(ctx, studentID)
	if err != nil {
		return dto.StreakResponse{}, err
	}
	freezes, err := s.repo.ListFreezes(ctx, studentID)
	if err != nil {
		return dto.StreakResponse{}, err
	}
	return streakView(record, toFreezes(freezes), s.now(), s.config.Location), nil
}

// RecordActivity applies today's activity. A concurrent writer bumps the
// record version, so the transition is recomputed from fresh state.
func (s *streakService) RecordActivity(ctx context.Context, studentID uint) (dto.StreakActivityResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/streak")
	ctx, span := tracer.Start(ctx, "streak.record_activity")
	span.SetAttributes(attribute.Int64("streak.student_id", int64(studentID)))
	defer span.End()

	if studentID == 0 {
		return dto.StreakActivityResponse{}, ErrStudentRequired
	}

	for attempt := 1; attempt <= streakWriteAttempts; attempt++ {
		response, record, transition, err := s.applyOnce(ctx, studentID)
		if errors.Is(err, repository.ErrConflict) {
			observability.StreakConflicts().Inc()
			s.logger.Debug().Uint("student_id", studentID).Int("attempt", attempt).Msg("streak write conflict, retrying")
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "streak_update_failed")
			return dto.StreakActivityResponse{}, err
		}

		observability.StreakTransitions().WithLabelValues(string(transition.Outcome)).Inc()
		span.SetAttributes(
			attribute.String("streak.outcome", string(transition.Outcome)),
			attribute.Int("streak.current", record.CurrentStreak),
		)
		if transition.Changed() {
			s.updateLeaderboard(ctx, record)
			s.celebrate(ctx, record, transition.NewMilestones)
		}
		return response, nil
	}

	span.SetStatus(codes.Error, "streak_conflict")
	return dto.StreakActivityResponse{}, streak.ErrStateConflict
}

func (s *streakService) applyOnce(ctx context.Context, studentID uint) (dto.StreakActivityResponse, models.StreakRecord, streak.Transition, error) {
	record, err := s.repo.GetOrCreate(ctx, studentID)
	if err != nil {
		return dto.StreakActivityResponse{}, models.StreakRecord{}, streak.Transition{}, err
	}
	freezeModels, err := s.repo.ListFreezes(ctx, studentID)
	if err != nil {
		return dto.StreakActivityResponse{}, models.StreakRecord{}, streak.Transition{}, err
	}

	now := s.now()
	freezes := toFreezes(freezeModels)
	transition := streak.Apply(toState(record), freezes, now, s.config.Location)

	if transition.Changed() {
		record.CurrentStreak = transition.State.CurrentStreak
		record.LongestStreak = transition.State.LongestStreak
		record.LastActivityDate = transition.State.LastActivityDate
		record.Milestones = datatypes.NewJSONSlice(transition.State.Milestones)
		if err := s.repo.SaveTransition(ctx, &record, transition.ConsumedFreeze, now); err != nil {
			return dto.StreakActivityResponse{}, models.StreakRecord{}, streak.Transition{}, err
		}
		if transition.ConsumedFreeze != nil {
			markUsed(freezes, *transition.ConsumedFreeze, now)
		}
	}

	response := dto.StreakActivityResponse{
		Streak:         dto.NewStreakResponse(record, streak.Available(freezes, now)),
		Outcome:        string(transition.Outcome),
		FreezeConsumed: transition.ConsumedFreeze != nil,
		NewMilestones:  append([]int{}, transition.NewMilestones...),
	}
	return response, record, transition, nil
}

func (s *streakService) celebrate(ctx context.Context, record models.StreakRecord, milestones []int) {
	for _, milestone := range milestones {
		badge := models.UserBadge{
			StudentID: record.StudentID,
			Code:      fmt.Sprintf("streak_%d", milestone),
			Name:      fmt.Sprintf("%d-day streak", milestone),
			AwardedAt: s.now(),
		}
		created, err := s.repo.AwardBadge(ctx, &badge)
		if err != nil {
			s.logger.Warn().Err(err).Uint("student_id", record.StudentID).Int("milestone", milestone).Msg("failed to award streak badge")
			continue
		}
		if !created {
			continue
		}

		message := fmt.Sprintf("You reached a %d-day learning streak and earned the %q badge!", milestone, badge.Name)
		notifyAsync(s.async, s.notifier, s.logger, ctx, record.StudentID, models.NotificationTypeStreakMilestone, message)
		publishAsync(s.async, s.publisher, s.logger, ctx, events.SubjectStreakMilestone, MilestoneEvent{
			StudentID:     record.StudentID,
			Milestone:     milestone,
			CurrentStreak: record.CurrentStreak,
		})
	}
}

func (s *streakService) GrantFreeze(ctx context.Context, payload dto.FreezeGrantRequest, actor ActivityActor) (dto.FreezeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.FreezeResponse{}, err
	}

	freeze := models.StreakFreeze{
		StudentID: payload.StudentID,
		Reason:    payload.Reason,
	}
	if s.config.FreezeTTL > 0 {
		expires := s.now().Add(s.config.FreezeTTL)
		freeze.ExpiresAt = &expires
	}

	if err := s.repo.CreateFreeze(ctx, &freeze); err != nil {
		return dto.FreezeResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "streak.freeze_granted",
		EntityType: "streak_freeze",
		EntityID:   &freeze.ID,
		Metadata:   map[string]interface{}{"student_id": payload.StudentID, "reason": payload.Reason},
	})

	return dto.NewFreezeResponse(freeze), nil
}

func (s *streakService) StartSession(ctx context.Context, studentID uint) (dto.SessionResponse, error) {
	if studentID == 0 {
		return dto.SessionResponse{}, ErrStudentRequired
	}

	session := models.AttendanceSession{StudentID: studentID, StartedAt: s.now()}
	if err := s.repo.StartSession(ctx, &session); err != nil {
		return dto.SessionResponse{}, err
	}

	if _, err := s.RecordActivity(ctx, studentID); err != nil {
		s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to record streak activity for session")
	}

	return dto.NewSessionResponse(session), nil
}

func (s *streakService) EndSession(ctx context.Context, studentID uint) (dto.SessionResponse, error) {
	session, err := s.repo.EndSession(ctx, studentID, s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrConflict) {
			return dto.SessionResponse{}, ErrNoOpenSession
		}
		return dto.SessionResponse{}, err
	}
	return dto.NewSessionResponse(session), nil
}

func (s *streakService) WeeklyReport(ctx context.Context, studentID uint, weekOf time.Time) (streak.WeeklyReport, error) {
	now := s.now()
	if weekOf.IsZero() {
		weekOf = now
	}
	start := streak.WeekStart(weekOf, s.config.Location)
	end := start.AddDate(0, 0, 7)

	sessions, err := s.repo.ListSessions(ctx, studentID, start, end)
	if err != nil {
		return streak.WeeklyReport{}, err
	}

	items := make([]streak.Session, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, streak.Session{StartedAt: session.StartedAt, EndedAt: session.EndedAt})
	}
	return streak.BuildWeeklyReport(items, start, now, s.config.Location), nil
}

func (s *streakService) Leaderboard(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	// Over-read so lapsed streaks dropped below still leave a full page.
	candidates := min(limit*2, 100)

	entries, ok := s.leaderboardFromRedis(ctx, candidates)
	if !ok {
		records, err := s.repo.Top(ctx, candidates)
		if err != nil {
			return nil, err
		}
		entries = make([]dto.LeaderboardEntry, 0, len(records))
		for _, record := range records {
			entries = append(entries, dto.LeaderboardEntry{StudentID: record.StudentID, CurrentStreak: record.CurrentStreak})
		}
	}

	entries, err := s.dropLapsed(ctx, entries)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	ids := make([]uint, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.StudentID)
	}
	names, err := s.students.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Name = names[entries[i].StudentID].Name
	}
	return entries, nil
}

// dropLapsed re-reads candidates from the database, keeps only streaks still
// alive today and prunes the rest from the sorted set.
func (s *streakService) dropLapsed(ctx context.Context, entries []dto.LeaderboardEntry) ([]dto.LeaderboardEntry, error) {
	if len(entries) == 0 {
		return entries, nil
	}
	ids := make([]uint, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.StudentID)
	}

	records, err := s.repo.ListByStudents(ctx, ids)
	if err != nil {
		return nil, err
	}
	freezeModels, err := s.repo.ListUnusedFreezes(ctx, ids)
	if err != nil {
		return nil, err
	}
	byStudent := make(map[uint]models.StreakRecord, len(records))
	for _, record := range records {
		byStudent[record.StudentID] = record
	}
	freezes := make(map[uint][]models.StreakFreeze)
	for _, f := range freezeModels {
		freezes[f.StudentID] = append(freezes[f.StudentID], f)
	}

	now := s.now()
	kept := make([]dto.LeaderboardEntry, 0, len(entries))
	var lapsed []interface{}
	for _, entry := range entries {
		record, ok := byStudent[entry.StudentID]
		current := 0
		if ok {
			current = streak.Current(toState(record), toFreezes(freezes[entry.StudentID]), now, s.config.Location)
		}
		if current == 0 {
			lapsed = append(lapsed, strconv.FormatUint(uint64(entry.StudentID), 10))
			continue
		}
		entry.CurrentStreak = current
		kept = append(kept, entry)
	}

	if len(lapsed) > 0 && s.redis != nil {
		if err := s.redis.ZRem(ctx, s.config.LeaderboardKey, lapsed...).Err(); err != nil {
			s.logger.Warn().Err(err).Int("members", len(lapsed)).Msg("failed to prune lapsed streaks from leaderboard")
		}
	}

	sortLeaderboard(kept)
	return kept, nil
}

func (s *streakService) Badges(ctx context.Context, studentID uint) ([]dto.BadgeResponse, error) {
	badges, err := s.repo.ListBadges(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return dto.NewBadgeResponseSlice(badges), nil
}

func (s *streakService) updateLeaderboard(ctx context.Context, record models.StreakRecord) {
	if s.redis == nil {
		return
	}
	member := strconv.FormatUint(uint64(record.StudentID), 10)
	var err error
	if record.CurrentStreak > 0 {
		err = s.redis.ZAdd(ctx, s.config.LeaderboardKey, redis.Z{Score: float64(record.CurrentStreak), Member: member}).Err()
	} else {
		err = s.redis.ZRem(ctx, s.config.LeaderboardKey, member).Err()
	}
	if err != nil {
		s.logger.Warn().Err(err).Uint("student_id", record.StudentID).Msg("failed to update streak leaderboard")
	}
}

// leaderboardFromRedis returns false when the sorted set is unavailable or
// empty so the caller can fall back to the database.
func (s *streakService) leaderboardFromRedis(ctx context.Context, limit int) ([]dto.LeaderboardEntry, bool) {
	if s.redis == nil {
		return nil, false
	}

	members, err := s.redis.ZRevRangeWithScores(ctx, s.config.LeaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read streak leaderboard")
		return nil, false
	}
	if len(members) == 0 {
		return nil, false
	}

	entries := make([]dto.LeaderboardEntry, 0, len(members))
	for _, member := range members {
		raw, ok := member.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, dto.LeaderboardEntry{StudentID: uint(id), CurrentStreak: int(member.Score)})
	}
	sortLeaderboard(entries)
	return entries, true
}

func sortLeaderboard(entries []dto.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CurrentStreak != entries[j].CurrentStreak {
			return entries[i].CurrentStreak > entries[j].CurrentStreak
		}
		return entries[i].StudentID < entries[j].StudentID
	})
}

// streakView reports the streak as it stands at now rather than as last stored.
func streakView(record models.StreakRecord, freezes []streak.Freeze, now time.Time, loc *time.Location) dto.StreakResponse {
	record.CurrentStreak = streak.Current(toState(record), freezes, now, loc)
	return dto.NewStreakResponse(record, streak.Available(freezes, now))
}

func toState(record models.StreakRecord) streak.State {
	return streak.State{
		CurrentStreak:    record.CurrentStreak,
		LongestStreak:    record.LongestStreak,
		LastActivityDate: record.LastActivityDate,
		Milestones:       append([]int{}, record.Milestones...),
	}
}

func toFreezes(items []models.StreakFreeze) []streak.Freeze {
	freezes := make([]streak.Freeze, 0, len(items))
	for _, f := range items {
		freezes = append(freezes, streak.Freeze{ID: f.ID, CreatedAt: f.CreatedAt, ExpiresAt: f.ExpiresAt, UsedAt: f.UsedAt})
	}
	return freezes
}

func markUsed(freezes []streak.Freeze, id uint, at time.Time) {
	for i := range freezes {
		if freezes[i].ID == id {
			used := at
			freezes[i].UsedAt = &used
			return
		}
	}
}
