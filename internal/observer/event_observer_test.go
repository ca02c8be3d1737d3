package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type panickyObserver struct{}

func (panickyObserver) OnEvent(ctx context.Context, event DetectionEvent) { panic("boom") }
func (panickyObserver) GetObserverName() string                           { return "panicky" }

func TestEventPublisher_MetricsAndPanicIsolation(t *testing.T) {
	metrics := NewMetricsObserver()
	pub := NewEventPublisher()
	pub.Subscribe(panickyObserver{})
	pub.Subscribe(metrics)
	ctx := context.Background()

	pub.NotifyObservers(ctx, DetectionEvent{EventType: DetectionStarted})
	pub.NotifyObservers(ctx, DetectionEvent{EventType: DetectionCompleted, Attempts: 1, ProcessingTime: 2 * time.Second})
	pub.NotifyObservers(ctx, DetectionEvent{EventType: DetectionStarted})
	pub.NotifyObservers(ctx, DetectionEvent{EventType: DetectionCompleted, Attempts: 3, Partial: true, ProcessingTime: 4 * time.Second})
	pub.NotifyObservers(ctx, DetectionEvent{EventType: DetectionStarted})
	pub.NotifyObservers(ctx, DetectionEvent{EventType: DetectionFailed, Attempts: 3, ErrorType: "connect_failed"})
	pub.NotifyObservers(ctx, DetectionEvent{EventType: RecordPersistFailed})

	m := metrics.GetMetrics()
	checks := map[string]int64{
		"total_detections":       3,
		"successful_detections":  2,
		"partial_detections":     1,
		"failed_detections":      1,
		"persist_failures":       1,
		"total_attempts":         7,
		"avg_processing_time_ms": 3000,
	}
	for key, want := range checks {
		if got := m[key]; got != want {
			t.Errorf("%s = %v, want %d", key, got, want)
		}
	}
	byType := m["failures_by_error_type"].(map[string]int64)
	if byType["connect_failed"] != 1 {
		t.Errorf("Expected one connect_failed, got %v", byType)
	}
}

func TestEventPublisher_Unsubscribe(t *testing.T) {
	metrics := NewMetricsObserver()
	pub := NewEventPublisher()
	pub.Subscribe(metrics)
	pub.Unsubscribe(metrics)

	pub.NotifyObservers(context.Background(), DetectionEvent{EventType: DetectionStarted})
	if got := metrics.GetMetrics()["total_detections"]; got != int64(0) {
		t.Errorf("Expected no events after unsubscribe, got %v", got)
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	obs := NewLoggingObserver(l)
	obs.OnEvent(context.Background(), DetectionEvent{
		EventType:   DetectionFailed,
		DetectionID: "d-1",
		ErrorType:   "timeout",
		Metadata:    map[string]interface{}{"client_ip": "10.0.0.1"},
	})

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["level"] != "error" || entry["msg"] != "Detection failed" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["error_type"] != "timeout" || entry["client_ip"] != "10.0.0.1" {
		t.Errorf("missing fields: %v", entry)
	}
}
