package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TransportMetrics implements transport.Metrics with Prometheus collectors.
// Metric names are prefixed with the service name. Labels:
//   - relay_messages_received_total           {channel}
//   - relay_messages_processed_total          {channel, status}
//   - relay_message_processing_duration_seconds {channel}
//   - relay_messages_sent_total               {channel, status}
//   - relay_message_publish_duration_seconds  {channel}
//   - relay_active_subscriptions              no labels
//   - relay_uptime_seconds                    no labels
type TransportMetrics struct {
	messagesReceived  *prometheus.CounterVec
	messagesProcessed *prometheus.CounterVec
	processingTime    *prometheus.HistogramVec

	messagesSent *prometheus.CounterVec
	publishTime  *prometheus.HistogramVec

	activeSubscriptions prometheus.Gauge
	uptime              prometheus.Gauge

	startTime time.Time
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewTransportMetrics registers the collectors on reg and starts the uptime
// updater. Call Close to stop it.
func NewTransportMetrics(reg prometheus.Registerer, serviceName string) *TransportMetrics {
	if serviceName == "" {
		serviceName = "eventrelay"
	}
	factory := promauto.With(reg)

	m := &TransportMetrics{
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	m.messagesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_relay_messages_received_total", serviceName),
			Help: "Total number of messages received from the relay channel",
		},
		[]string{"channel"},
	)

	m.messagesProcessed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_relay_messages_processed_total", serviceName),
			Help: "Total number of received messages by outcome",
		},
		// status: dispatched, self_origin, decode_error, ignored
		[]string{"channel", "status"},
	)

	m.processingTime = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_relay_message_processing_duration_seconds", serviceName),
			Help:    "Time spent decoding and dispatching received messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	m.messagesSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_relay_messages_sent_total", serviceName),
			Help: "Total number of messages sent to the relay channel",
		},
		// status: success, error, encode_error, ignored
		[]string{"channel", "status"},
	)

	m.publishTime = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_relay_message_publish_duration_seconds", serviceName),
			Help:    "Time spent publishing messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	m.activeSubscriptions = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_relay_active_subscriptions", serviceName),
			Help: "Number of active channel subscriptions",
		},
	)

	m.uptime = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_relay_uptime_seconds", serviceName),
			Help: "Service uptime in seconds",
		},
	)

	go m.updateUptimeLoop()

	return m
}

func (m *TransportMetrics) IncMessagesReceived(channel string) {
	m.messagesReceived.WithLabelValues(channel).Inc()
}

func (m *TransportMetrics) IncMessagesProcessed(channel string, status string) {
	m.messagesProcessed.WithLabelValues(channel, status).Inc()
}

func (m *TransportMetrics) RecordProcessingTime(channel string, duration time.Duration) {
	m.processingTime.WithLabelValues(channel).Observe(duration.Seconds())
}

func (m *TransportMetrics) IncMessagesSent(channel string, status string) {
	m.messagesSent.WithLabelValues(channel, status).Inc()
}

func (m *TransportMetrics) RecordPublishTime(channel string, duration time.Duration) {
	m.publishTime.WithLabelValues(channel).Observe(duration.Seconds())
}

func (m *TransportMetrics) SetActiveSubscriptions(count int) {
	m.activeSubscriptions.Set(float64(count))
}

func (m *TransportMetrics) RecordUptime(duration time.Duration) {
	m.uptime.Set(duration.Seconds())
}

// updateUptimeLoop updates the uptime gauge every 10 seconds until Close.
func (m *TransportMetrics) updateUptimeLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	defer close(m.doneCh)

	for {
		select {
		case <-ticker.C:
			m.RecordUptime(time.Since(m.startTime))
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the uptime updater. Safe to call more than once.
func (m *TransportMetrics) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
}
