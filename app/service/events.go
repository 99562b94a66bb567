package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/factory"
	"github.com/vibast-solutions/ms-go-gym-payments/config"
)

type EventPublisher interface {
	Publish(ctx context.Context, event *entity.PaymentEvent) error
}

// EventDispatcher drains the payment_events outbox into a publisher.
type EventDispatcher struct {
	eventRepo   paymentEventRepository
	publisher   EventPublisher
	paymentsCfg config.PaymentsConfig
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewEventDispatcher(eventRepo paymentEventRepository, publisher EventPublisher, paymentsCfg config.PaymentsConfig) *EventDispatcher {
	return &EventDispatcher{
		eventRepo:   eventRepo,
		publisher:   publisher,
		paymentsCfg: paymentsCfg,
		logger:      factory.NewModuleLogger("payments-events"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *EventDispatcher) RunDispatchBatch(ctx context.Context) error {
	now := d.now()
	batch := d.paymentsCfg.JobBatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	items, err := d.eventRepo.ListDuePublish(ctx, now, batch)
	if err != nil {
		return err
	}

	var firstErr error
	for _, event := range items {
		if event == nil {
			continue
		}
		if err := d.dispatch(ctx, event, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (d *EventDispatcher) dispatch(ctx context.Context, event *entity.PaymentEvent, now time.Time) error {
	if err := d.publisher.Publish(ctx, event); err != nil {
		return d.recordPublishFailure(ctx, event, now, err)
	}

	event.PublishStatus = entity.PublishStatusPublished
	event.PublishAttempts++
	event.PublishNextAt = nil
	event.PublishLastError = nil
	event.PublishedAt = &now

	return d.eventRepo.UpdatePublishState(ctx, event)
}

func (d *EventDispatcher) recordPublishFailure(ctx context.Context, event *entity.PaymentEvent, now time.Time, publishErr error) error {
	event.PublishAttempts++
	trimmed := truncate(publishErr.Error(), 1024)
	event.PublishLastError = &trimmed

	maxAttempts := d.paymentsCfg.EventMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if event.PublishAttempts >= maxAttempts {
		event.PublishStatus = entity.PublishStatusFailed
		event.PublishNextAt = nil
	} else {
		retryInterval := d.paymentsCfg.EventRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		event.PublishStatus = entity.PublishStatusPending
		event.PublishNextAt = &next
	}

	d.logger.WithError(publishErr).WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"attempts":   event.PublishAttempts,
	}).Warn("Publish payment event failed")

	if err := d.eventRepo.UpdatePublishState(ctx, event); err != nil {
		return err
	}

	return publishErr
}
