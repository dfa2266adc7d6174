package relay

import (
	"context"
	"errors"
	"time"
)

// Provisioner creates and removes broker resources idempotently.
//
// Ensure operations treat "already exists" as success and removal operations
// treat "not found" as success: the desired state holds either way, which is
// what lets pipeline restarts re-run their setup unconditionally. Every other
// failure is wrapped in a *ProvisionError and is fatal to the pipeline that
// needed the resource.
type Provisioner struct {
	transport Transport
	logger    Logger
}

// NewProvisioner creates a provisioner over the given transport.
//
// Parameters:
//   - transport: Broker transport to provision against
//   - opts: Optional logger via WithLogger
//
// Returns:
//   - *Provisioner: Initialized provisioner
//   - error: ErrTransportRequired when transport is nil
func NewProvisioner(transport Transport, opts ...Option) (*Provisioner, error) {
	if transport == nil {
		return nil, ErrTransportRequired
	}

	o := applyOptions(opts)

	return &Provisioner{transport: transport, logger: o.logger}, nil
}

// EnsureTopic creates the topic if it does not exist.
func (p *Provisioner) EnsureTopic(ctx context.Context, topic string) error {
	err := p.transport.CreateTopic(ctx, topic)
	switch {
	case err == nil:
		p.logger.Debug("topic created", "topic", topic)
		return nil
	case errors.Is(err, ErrAlreadyExists):
		p.logger.Debug("topic already exists", "topic", topic)
		return nil
	}

	return &ProvisionError{Resource: "topic", ID: topic, Err: err}
}

// EnsureSubscription creates a durable subscription bound to topic if it
// does not exist. ackDeadline is the redelivery window applied to pulled
// messages.
func (p *Provisioner) EnsureSubscription(ctx context.Context, subscription, topic string, ackDeadline time.Duration) error {
	err := p.transport.CreateSubscription(ctx, subscription, topic, ackDeadline)
	switch {
	case err == nil:
		p.logger.Debug("subscription created", "subscription", subscription, "topic", topic)
		return nil
	case errors.Is(err, ErrAlreadyExists):
		p.logger.Debug("subscription already exists", "subscription", subscription, "topic", topic)
		return nil
	}

	return &ProvisionError{Resource: "subscription", ID: subscription, Err: err}
}

// RemoveTopic deletes the topic and its retained messages. A topic that is
// already gone counts as removed.
func (p *Provisioner) RemoveTopic(ctx context.Context, topic string) error {
	err := p.transport.DeleteTopic(ctx, topic)
	switch {
	case err == nil:
		p.logger.Debug("topic removed", "topic", topic)
		return nil
	case errors.Is(err, ErrNotFound):
		p.logger.Debug("topic already removed", "topic", topic)
		return nil
	}

	return &ProvisionError{Resource: "topic", ID: topic, Err: err}
}

// RemoveSubscription deletes the subscription and its cursor. A subscription
// that is already gone counts as removed.
func (p *Provisioner) RemoveSubscription(ctx context.Context, subscription, topic string) error {
	err := p.transport.DeleteSubscription(ctx, subscription, topic)
	switch {
	case err == nil:
		p.logger.Debug("subscription removed", "subscription", subscription, "topic", topic)
		return nil
	case errors.Is(err, ErrNotFound):
		p.logger.Debug("subscription already removed", "subscription", subscription, "topic", topic)
		return nil
	}

	return &ProvisionError{Resource: "subscription", ID: subscription, Err: err}
}
