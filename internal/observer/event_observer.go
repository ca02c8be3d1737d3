package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DetectionEvent represents a detection lifecycle event
type DetectionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	DetectionID    string                 `json:"detection_id,omitempty"`
	FoodType       string                 `json:"food_type,omitempty"`
	TransferMethod string                 `json:"transfer_method,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Attempts       int                    `json:"attempts"`
	Success        bool                   `json:"success"`
	Partial        bool                   `json:"partial,omitempty"`
	ErrorType      string                 `json:"error_type,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of detection event
type EventType string

const (
	// DetectionStarted when a detection request is accepted
	DetectionStarted EventType = "detection_started"
	// DetectionCompleted when the workflow returned a result
	DetectionCompleted EventType = "detection_completed"
	// DetectionFailed when the workflow call failed
	DetectionFailed EventType = "detection_failed"
	// ImageStored when the uploaded image was written to file storage
	ImageStored EventType = "image_stored"
	// RecordPersistFailed when the outcome could not be persisted
	RecordPersistFailed EventType = "record_persist_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event DetectionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event DetectionEvent)
}

// LoggingObserver logs detection events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles detection events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event DetectionEvent) {
	fields := logrus.Fields{
		"event_type":         event.EventType,
		"detection_id":       event.DetectionID,
		"processing_time_ms": event.ProcessingTime.Milliseconds(),
		"attempts":           event.Attempts,
		"success":            event.Success,
	}
	if event.FoodType != "" {
		fields["food_type"] = event.FoodType
	}
	if event.TransferMethod != "" {
		fields["transfer_method"] = event.TransferMethod
	}
	if event.Partial {
		fields["partial"] = true
	}
	if event.ErrorType != "" {
		fields["error_type"] = event.ErrorType
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case DetectionStarted:
		entry.Info("Detection started")
	case DetectionCompleted:
		if event.Partial {
			entry.Warn("Detection completed with partial result")
			return
		}
		entry.Info("Detection completed")
	case DetectionFailed:
		entry.Error("Detection failed")
	case ImageStored:
		entry.Debug("Label image stored")
	case RecordPersistFailed:
		entry.Error("Detection record could not be persisted")
	default:
		entry.Info("Detection event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from detection events
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalDetections     int64
	successful          int64
	partial             int64
	failed              int64
	persistFailures     int64
	totalAttempts       int64
	totalProcessingTime time.Duration
	failuresByType      map[string]int64
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failuresByType: make(map[string]int64)}
}

// OnEvent handles detection events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event DetectionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case DetectionStarted:
		o.totalDetections++
	case DetectionCompleted:
		o.successful++
		if event.Partial {
			o.partial++
		}
		o.totalAttempts += int64(event.Attempts)
		o.totalProcessingTime += event.ProcessingTime
	case DetectionFailed:
		o.failed++
		o.totalAttempts += int64(event.Attempts)
		o.failuresByType[event.ErrorType]++
	case RecordPersistFailed:
		o.persistFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successful > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successful)
	}
	byType := make(map[string]int64, len(o.failuresByType))
	for k, v := range o.failuresByType {
		byType[k] = v
	}

	return map[string]interface{}{
		"total_detections":       o.totalDetections,
		"successful_detections":  o.successful,
		"partial_detections":     o.partial,
		"failed_detections":      o.failed,
		"persist_failures":       o.persistFailures,
		"total_attempts":         o.totalAttempts,
		"avg_processing_time_ms": avgProcessingTime.Milliseconds(),
		"failures_by_error_type": byType,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription order.
// A panicking observer is logged and skipped.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event DetectionEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event DetectionEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
