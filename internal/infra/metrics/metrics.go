package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glaze_submissions_total",
		Help: "Принятые сообщения по начальному статусу модерации",
	}, []string{"status"})

	DropsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glaze_drops_total",
		Help: "Опубликованные сообщения по типу публикации",
	}, []string{"kind"})

	DeliveryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glaze_delivery_errors_total",
		Help: "Ошибки доставки уведомлений",
	}, []string{"kind"})

	ModerationActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glaze_moderation_actions_total",
		Help: "Действия модераторов",
	}, []string{"action"})

	MonthlyAnnouncements = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glaze_monthly_announcements_total",
		Help: "Объявленные победители месяца",
	})

	StoreConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glaze_store_conflicts_total",
		Help: "Конфликты версий документа при записи",
	})

	SchedulerTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "glaze_scheduler_tick_seconds",
		Help:    "Длительность одного тика планировщика",
		Buckets: prometheus.DefBuckets,
	})

	SchedulerTickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glaze_scheduler_tick_errors_total",
		Help: "Тики планировщика, завершившиеся ошибкой",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SubmissionsTotal,
		DropsTotal,
		DeliveryErrors,
		ModerationActions,
		MonthlyAnnouncements,
		StoreConflicts,
		SchedulerTickSeconds,
		SchedulerTickErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveDelivery учитывает неудачную доставку уведомления.
func ObserveDelivery(kind string, err error) {
	if err != nil {
		DeliveryErrors.WithLabelValues(kind).Inc()
	}
}
