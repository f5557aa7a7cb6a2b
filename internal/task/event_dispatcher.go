package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

const (
	DefaultEventQueueSize = 256

	eventLogTimeout = 5 * time.Second
)

var (
	ErrEventQueueFull      = errors.New("event_queue_full")
	ErrEventTypeNotAllowed = errors.New("event_type_not_allowed")
	ErrEventDispatcherIdle = errors.New("event_dispatcher_not_running")
)

// EventLogger records a touchpoint event. store.Procedures satisfies it.
type EventLogger interface {
	LogEvent(ctx context.Context, touchpointID string, eventType string) (string, error)
}

type queuedEvent struct {
	touchpointID string
	eventType    model.EventType
}

// EventDispatcher logs touchpoint events off the request path. Dispatch never blocks and
// failures are logged and dropped.
type EventDispatcher struct {
	eventLogger  EventLogger
	logger       *zap.Logger
	queue        chan queuedEvent
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewEventDispatcher(eventLogger EventLogger, queueSize int, logger *zap.Logger) *EventDispatcher {
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventDispatcher{
		eventLogger: eventLogger,
		logger:      logger,
		queue:       make(chan queuedEvent, queueSize),
	}
}

// Dispatch queues an event. Types outside the logging allow-list are refused.
func (dispatcher *EventDispatcher) Dispatch(touchpointID string, eventType model.EventType) error {
	if dispatcher == nil {
		return ErrEventDispatcherIdle
	}
	if !model.IsLoggableEventType(string(eventType)) {
		return ErrEventTypeNotAllowed
	}
	select {
	case dispatcher.queue <- queuedEvent{touchpointID: strings.TrimSpace(touchpointID), eventType: eventType}:
		return nil
	default:
		dispatcher.logger.Warn("event_queue_full", zap.String("touchpoint_id", touchpointID), zap.String("event_type", string(eventType)))
		return ErrEventQueueFull
	}
}

// Start launches the worker. Calling Start on a running dispatcher does nothing.
func (dispatcher *EventDispatcher) Start(ctx context.Context) {
	if dispatcher == nil || dispatcher.eventLogger == nil {
		return
	}
	dispatcher.controlMutex.Lock()
	defer dispatcher.controlMutex.Unlock()
	if dispatcher.cancel != nil {
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	dispatcher.cancel = cancel
	dispatcher.done = make(chan struct{})
	go dispatcher.work(runtimeCtx, dispatcher.done)
}

// Stop ends the worker after the events already queued have been logged.
func (dispatcher *EventDispatcher) Stop() {
	if dispatcher == nil {
		return
	}
	dispatcher.controlMutex.Lock()
	cancel := dispatcher.cancel
	done := dispatcher.done
	dispatcher.cancel = nil
	dispatcher.done = nil
	dispatcher.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (dispatcher *EventDispatcher) work(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			dispatcher.drain(context.WithoutCancel(ctx))
			return
		case event := <-dispatcher.queue:
			dispatcher.log(ctx, event)
		}
	}
}

func (dispatcher *EventDispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-dispatcher.queue:
			dispatcher.log(ctx, event)
		default:
			return
		}
	}
}

func (dispatcher *EventDispatcher) log(ctx context.Context, event queuedEvent) {
	logCtx, cancel := context.WithTimeout(ctx, eventLogTimeout)
	defer cancel()
	eventID, logErr := dispatcher.eventLogger.LogEvent(logCtx, event.touchpointID, string(event.eventType))
	if logErr != nil {
		dispatcher.logger.Warn(
			"event_log_failed",
			zap.String("touchpoint_id", event.touchpointID),
			zap.String("event_type", string(event.eventType)),
			zap.Error(logErr),
		)
		return
	}
	dispatcher.logger.Debug("event_logged", zap.String("event_id", eventID), zap.String("event_type", string(event.eventType)))
}
