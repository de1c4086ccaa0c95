// Package drop публикует накопленные сообщения по расписанию и объявляет победителя месяца.
package drop

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
	"glaze-bot/internal/store"
	"glaze-bot/internal/usecase/ledger"
	"glaze-bot/internal/usecase/winner"
)

const (
	defaultTick = time.Minute
	// lockTTL покрывает одну минуту расписания и запас на медленный бэкенд.
	lockTTL = 5 * time.Minute
)

// Scheduler раз в тик проверяет, пора ли выполнить ежедневную или ежемесячную публикацию.
type Scheduler struct {
	store    domain.DocumentStore
	notifier domain.Notifier
	loc      *time.Location
	tick     time.Duration
	now      func() time.Time
	cache    domain.Cache
	pick     func(n int) int
	log      zerolog.Logger

	// mu не даёт тику и ручному запуску публиковать одновременно внутри процесса.
	// Между репликами это делает cache.
	mu sync.Mutex
}

// Option настраивает Scheduler.
type Option func(*Scheduler)

// WithTick задаёт период проверки.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithCache включает блокировку между репликами.
func WithCache(cache domain.Cache) Option {
	return func(s *Scheduler) { s.cache = cache }
}

// WithPicker подменяет выбор случайного кандидата.
func WithPicker(pick func(n int) int) Option {
	return func(s *Scheduler) { s.pick = pick }
}

// NewScheduler создаёт планировщик, расписание считается в часовом поясе loc.
func NewScheduler(st domain.DocumentStore, notifier domain.Notifier, loc *time.Location, logger zerolog.Logger, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		store:    st,
		notifier: notifier,
		loc:      loc,
		tick:     defaultTick,
		now:      time.Now,
		pick:     rand.IntN,
		log:      logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DailyResult описывает одну ежедневную публикацию.
type DailyResult struct {
	Date    string
	Dropped []string
	Failed  []string
}

// Run выполняет тики до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	s.log.Info().Dur("tick", s.tick).Str("tz", s.loc.String()).Msg("планировщик запущен")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// тик не прерывается посреди работы, поэтому отмена сюда не передаётся
			_ = s.Tick(context.WithoutCancel(ctx), s.now())
		}
	}
}

// Tick выполняет обе проверки. Ошибки и паники логируются и не останавливают следующие тики.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler panic: %v", r)
		}
		metrics.SchedulerTickSeconds.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SchedulerTickErrors.Inc()
			s.log.Error().Err(err).Msg("ошибка тика планировщика")
		}
	}()

	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("загрузка документа: %w", err)
	}
	if doc.Config.DropChannelID == "" {
		return nil
	}
	var errs []error
	if s.dailyDue(doc, now) {
		if _, err := s.RunDaily(ctx, now); err != nil {
			errs = append(errs, fmt.Errorf("daily: %w", err))
		}
	}
	if s.monthlyDue(doc, now) {
		if _, err := s.RunMonthly(ctx, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("monthly: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) dailyDue(doc *domain.Document, now time.Time) bool {
	local := now.In(s.loc)
	return local.Hour() == doc.Config.DailyDropHour &&
		local.Minute() == doc.Config.DailyDropMinute &&
		doc.Meta.LastDailyDropDate != domain.DateKey(now, s.loc)
}

func (s *Scheduler) monthlyDue(doc *domain.Document, now time.Time) bool {
	local := now.In(s.loc)
	if !IsLastDayOfMonth(local) || local.Hour() != doc.Config.MonthlyDropHour || local.Minute() != doc.Config.MonthlyDropMinute {
		return false
	}
	_, done := doc.Meta.LastMonthlyAnnounce[domain.MonthKey(now, s.loc)]
	return !done
}

// IsLastDayOfMonth сообщает, что t приходится на последний календарный день месяца в своём часовом поясе.
func IsLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

// RunDaily выполняет ежедневную публикацию, если сегодня её ещё не было.
// Отметки dropped_at и дата публикации пишутся одной записью документа.
func (s *Scheduler) RunDaily(ctx context.Context, now time.Time) (DailyResult, error) {
	today := domain.DateKey(now, s.loc)
	var result DailyResult
	err := s.once("glaze:drop:daily:"+today, func() error {
		s.store.Invalidate()
		var err error
		result, err = s.releaseDaily(ctx, now, false)
		return err
	})
	return result, err
}

// ForceDaily выполняет ежедневную публикацию немедленно, не глядя на время и отметку даты.
func (s *Scheduler) ForceDaily(ctx context.Context, actor domain.Actor) (DailyResult, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return DailyResult{}, err
	}
	return s.releaseDaily(ctx, s.now(), true)
}

// releaseDaily отправляет пакет вне Update: хранилище не ждёт сетевых вызовов.
// Затем одна запись отмечает отправленные сообщения и дату публикации.
func (s *Scheduler) releaseDaily(ctx context.Context, now time.Time, force bool) (DailyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := domain.DateKey(now, s.loc)
	result := DailyResult{Date: today}
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return DailyResult{}, fmt.Errorf("загрузка документа: %w", err)
	}
	if !force && doc.Meta.LastDailyDropDate == today {
		return result, nil
	}
	channel := doc.Config.DropChannelID
	if channel == "" {
		return DailyResult{}, domain.ErrNoDropChannel
	}
	candidates := ledger.Candidates(doc)
	batch := candidates[:doc.Config.DailyDropLimit.Take(len(candidates))]
	for _, c := range batch {
		deliveryErr := s.notifier.DeliverDailyDrop(ctx, channel, c.RecipientID, c.Text)
		metrics.ObserveDelivery("daily", deliveryErr)
		result.Dropped = append(result.Dropped, c.ID)
		if deliveryErr != nil {
			s.log.Error().Err(deliveryErr).Str("id", c.ID).Msg("не удалось опубликовать сообщение")
			result.Failed = append(result.Failed, c.ID)
		}
	}

	stamp := now.UTC()
	_, err = s.store.Update(ctx, "Daily glaze drop", func(doc *domain.Document) error {
		stampDropped(doc, result.Dropped, stamp)
		doc.Meta.LastDailyDropDate = today
		return nil
	})
	if err != nil {
		return DailyResult{}, err
	}
	metrics.DropsTotal.WithLabelValues("daily").Add(float64(len(result.Dropped)))
	if len(result.Dropped) > 0 {
		s.log.Info().Str("date", today).Int("dropped", len(result.Dropped)).Int("failed", len(result.Failed)).Msg("ежедневная публикация выполнена")
	}
	return result, nil
}

// stampDropped отмечает опубликованными те сообщения из ids, что всё ещё остаются кандидатами.
// Удалённые или отклонённые за время отправки не трогаются.
func stampDropped(doc *domain.Document, ids []string, at time.Time) int {
	stamped := 0
	for _, id := range ids {
		sub, ok := doc.Find(id)
		if !ok || !sub.Candidate() {
			continue
		}
		t := at
		sub.DroppedAt = &t
		stamped++
	}
	return stamped
}

// RunMonthly объявляет победителя текущего месяца, если он ещё не объявлен.
// ErrNotFound означает, что в месяце нет подходящих сообщений.
func (s *Scheduler) RunMonthly(ctx context.Context, now time.Time) (winner.Result, error) {
	monthKey := domain.MonthKey(now, s.loc)
	var res winner.Result
	err := s.once("glaze:drop:monthly:"+monthKey, func() error {
		s.store.Invalidate()
		var err error
		res, err = s.announce(ctx, monthKey, now, false)
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			return nil
		}
		return err
	})
	return res, err
}

// ForceMonthly объявляет победителя произвольного месяца вне расписания.
// Пустой monthKey означает текущий месяц. Без override повторное объявление возвращает ErrAlreadyProcessed.
func (s *Scheduler) ForceMonthly(ctx context.Context, actor domain.Actor, monthKey string, override bool) (winner.Result, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return winner.Result{}, err
	}
	now := s.now()
	if monthKey == "" {
		monthKey = domain.MonthKey(now, s.loc)
	}
	if _, err := time.Parse("2006-01", monthKey); err != nil {
		return winner.Result{}, fmt.Errorf("%w: month must look like YYYY-MM", domain.ErrValidation)
	}
	return s.announce(ctx, monthKey, now, override)
}

func (s *Scheduler) announce(ctx context.Context, monthKey string, now time.Time, override bool) (winner.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return winner.Result{}, fmt.Errorf("загрузка документа: %w", err)
	}
	if _, done := doc.Meta.LastMonthlyAnnounce[monthKey]; done && !override {
		return winner.Result{}, domain.ErrAlreadyProcessed
	}
	channel := doc.Config.DropChannelID
	if channel == "" {
		return winner.Result{}, domain.ErrNoDropChannel
	}
	res, ok := winner.Compute(doc.Submissions, monthKey)
	if !ok {
		return winner.Result{}, domain.ErrNotFound
	}
	sendErr := s.notifier.DeliverMonthlyAnnouncement(ctx, channel, res.RecipientID, res.Count, monthKey)
	metrics.ObserveDelivery("monthly", sendErr)

	_, err = s.store.Update(ctx, "Monthly most glazed "+monthKey, func(doc *domain.Document) error {
		if _, done := doc.Meta.LastMonthlyAnnounce[monthKey]; done && !override {
			// другой процесс успел записать объявление, победа уже засчитана
			return store.ErrNoChanges
		}
		doc.Wins[res.RecipientID]++
		doc.Meta.LastMonthlyAnnounce[monthKey] = now.UTC()
		return nil
	})
	if err != nil {
		return winner.Result{}, err
	}
	metrics.MonthlyAnnouncements.Inc()
	logEvent := s.log.Info()
	if sendErr != nil {
		logEvent = s.log.Error().Err(sendErr)
	}
	logEvent.Str("month", monthKey).Str("winner", string(res.RecipientID)).Int("count", res.Count).Msg("победитель месяца записан")
	return res, nil
}

// RandomRelease немедленно публикует одного случайного кандидата. Отметку ежедневной публикации не трогает.
// При ошибке доставки сообщение остаётся кандидатом.
func (s *Scheduler) RandomRelease(ctx context.Context, actor domain.Actor) (domain.Submission, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return domain.Submission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("загрузка документа: %w", err)
	}
	channel := doc.Config.DropChannelID
	if channel == "" {
		return domain.Submission{}, domain.ErrNoDropChannel
	}
	candidates := ledger.Candidates(doc)
	if len(candidates) == 0 {
		return domain.Submission{}, domain.ErrNotFound
	}
	picked := candidates[s.pick(len(candidates))]
	err = s.notifier.DeliverDailyDrop(ctx, channel, picked.RecipientID, picked.Text)
	metrics.ObserveDelivery("random", err)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("публикация: %w", err)
	}

	stamp := s.now().UTC()
	_, err = s.store.Update(ctx, "Random glaze drop", func(doc *domain.Document) error {
		if stampDropped(doc, []string{picked.ID}, stamp) == 0 {
			return store.ErrNoChanges
		}
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	picked.DroppedAt = &stamp
	metrics.DropsTotal.WithLabelValues("random").Inc()
	return picked, nil
}

func (s *Scheduler) authorize(ctx context.Context, actor domain.Actor) error {
	s.store.Invalidate()
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("загрузка документа: %w", err)
	}
	if !doc.Config.IsAdmin(actor) {
		return domain.ErrPermission
	}
	return nil
}

func (s *Scheduler) once(key string, fn func() error) error {
	if s.cache == nil {
		return fn()
	}
	return s.cache.Once(key, lockTTL, fn)
}
