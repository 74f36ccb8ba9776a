package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"kind"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"status"})

	duplicateMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagpt_duplicate_messages_total",
		Help: "Total number of inbound messages dropped as duplicates",
	})

	// Command metrics
	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// AI metrics
	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wagpt_ai_request_duration_seconds",
		Help:    "Duration of AI requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_ai_requests_total",
		Help: "Total number of AI requests",
	}, []string{"operation", "status"})

	// Image metrics
	imageSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_image_searches_total",
		Help: "Total number of image searches",
	}, []string{"status"})

	imagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_images_sent_total",
		Help: "Total number of images sent",
	}, []string{"status"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"scope"})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagpt_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wagpt_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(kind string) {
	messagesReceived.WithLabelValues(kind).Inc()
}

// RecordMessageProcessed records a processed message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordDuplicate records a message dropped by deduplication
func (m *Metrics) RecordDuplicate() {
	duplicateMessages.Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordAIRequest records an AI request
func (m *Metrics) RecordAIRequest(operation, status string, duration time.Duration) {
	aiRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	aiRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordImageSearch records an image search
func (m *Metrics) RecordImageSearch(status string) {
	imageSearches.WithLabelValues(status).Inc()
}

// RecordImageSent records an outbound image
func (m *Metrics) RecordImageSent(status string) {
	imagesSent.WithLabelValues(status).Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded(scope string) {
	rateLimitExceeded.WithLabelValues(scope).Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// NewMetricsServer builds the metrics HTTP server with a /health endpoint.
func NewMetricsServer(port int, path string) *http.Server {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StartMetricsServer serves metrics until ctx is cancelled.
func StartMetricsServer(ctx context.Context, port int, path string) error {
	server := NewMetricsServer(port, path)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
