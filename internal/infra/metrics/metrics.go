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
	SnapshotBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stats_snapshot_build_seconds",
		Help:    "Время построения снимка статистики",
		Buckets: prometheus.DefBuckets,
	})
	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_refresh_total",
		Help: "Количество пересчётов статистики по источникам",
	}, []string{"cause"})
	SessionsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_recorded_total",
		Help: "Количество сохранённых сессий чтения",
	})
	MilestonesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "milestones_total",
		Help: "Количество впервые достигнутых порогов по типам",
	}, []string{"type"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SnapshotBuildSeconds,
		RefreshTotal,
		SessionsRecordedTotal,
		MilestonesTotal,
		BotSendErrors,
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
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// ObserveSnapshotBuild записывает длительность построения снимка.
func ObserveSnapshotBuild(start time.Time) {
	SnapshotBuildSeconds.Observe(time.Since(start).Seconds())
}

// IncRefresh увеличивает счётчик пересчётов для источника.
func IncRefresh(cause string) {
	if cause == "" {
		cause = "unknown"
	}
	RefreshTotal.WithLabelValues(cause).Inc()
}

// IncSessionRecorded увеличивает счётчик сохранённых сессий.
func IncSessionRecorded() {
	SessionsRecordedTotal.Inc()
}

// IncMilestone увеличивает счётчик достижений для типа.
func IncMilestone(milestoneType string) {
	if milestoneType == "" {
		milestoneType = "unknown"
	}
	MilestonesTotal.WithLabelValues(milestoneType).Inc()
}
