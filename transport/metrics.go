package transport

import (
	"time"
)

// Processing outcomes reported through Metrics.IncMessagesProcessed.
const (
	StatusDispatched  = "dispatched"
	StatusSelfOrigin  = "self_origin"
	StatusDecodeError = "decode_error"
	StatusIgnored     = "ignored"
)

// Send outcomes reported through Metrics.IncMessagesSent.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusEncodeError = "encode_error"
)

// Metrics определяет интерфейс для сбора метрик транспорта
type Metrics interface {
	// Входящие сообщения
	IncMessagesReceived(channel string)
	IncMessagesProcessed(channel string, status string)
	RecordProcessingTime(channel string, duration time.Duration)

	// Исходящие сообщения
	IncMessagesSent(channel string, status string)
	RecordPublishTime(channel string, duration time.Duration)

	SetActiveSubscriptions(count int)
	RecordUptime(duration time.Duration)
}

// NoOpMetrics реализация метрик, которая ничего не делает (для тестов/отключения)
type NoOpMetrics struct{}

func (m *NoOpMetrics) IncMessagesReceived(channel string)                          {}
func (m *NoOpMetrics) IncMessagesProcessed(channel string, status string)          {}
func (m *NoOpMetrics) RecordProcessingTime(channel string, duration time.Duration) {}
func (m *NoOpMetrics) IncMessagesSent(channel string, status string)               {}
func (m *NoOpMetrics) RecordPublishTime(channel string, duration time.Duration)    {}
func (m *NoOpMetrics) SetActiveSubscriptions(count int)                            {}
func (m *NoOpMetrics) RecordUptime(duration time.Duration)                         {}
