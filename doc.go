// Package relay provides a Go library for offset-ordered event publishing
// over message brokers with batched-ack consumption and single-writer
// coordination.
//
// Relay moves ordered, tagged event streams from an application-supplied
// source into broker topics, committing each event's offset after a durable
// publish so restarts resume exactly where they left off. On the consuming
// side it paces pulls on a fixed interval and acknowledges in batches.
// Pipelines are supervised: failures restart a fresh instance with jittered
// exponential backoff, and a cluster coordinator keeps exactly one publisher
// per tag across members.
//
// # Quick Start
//
// Publishing one tag with default settings:
//
//	import "github.com/arloliu/relay"
//
//	cfg := relay.DefaultConfig()
//	cfg.Namespace = "orders"
//
//	pub, err := relay.NewPublisher(&cfg, "orders-0", transport, store, source, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := pub.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Consuming with a JSON processing stage:
//
//	sub, err := relay.NewSubscriber(&cfg, "billing", "orders-0", transport,
//	    relay.JSONProcessor(func(ctx context.Context, order Order) error {
//	        return handle(ctx, order)
//	    }))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = sub.Run(ctx)
//
// # Key Features
//
//   - Offset-Ordered Publishing: Publish then commit, one event at a time, so
//     a tag's topic always reflects a prefix of its stream
//   - At-Least-Once Delivery: Crash recovery re-publishes only events after
//     the last committed offset
//   - Batched Acknowledgements: Consumers flush acks by size or interval,
//     whichever trips first
//   - Supervised Restarts: Fresh pipeline instances with jittered exponential
//     backoff, reset after stable runs
//   - Single-Writer Coordination: Consistent-hash ownership over live
//     membership keeps one publisher per tag cluster-wide
//   - Pluggable Backends: JetStream, Kafka, RabbitMQ and in-memory transports
//     behind one Transport interface
//
// # Architecture
//
// Publishers progress through a lifecycle per run:
//
//	Idle → ProvisioningTopic → LoadingOffset → Streaming → Completed
//
// Topic provisioning and offset loading run concurrently; streaming starts
// only after both finish. Any failure ends the run in the Failed state and
// supervision restarts a fresh instance after backoff.
//
// The coordinator watches an ownership oracle and reconciles on every
// change: publishers for de-assigned tags stop and drain first, then
// publishers for newly assigned tags start.
//
// # Advanced Usage
//
// Cluster deployment with ring ownership and hooks:
//
//	import (
//	    "github.com/arloliu/relay"
//	    "github.com/arloliu/relay/ownership"
//	)
//
//	ring, err := ownership.NewRing(kv, ownership.RingConfig{
//	    MemberID: cfg.MemberID,
//	    Role:     cfg.Role,
//	    Tags:     source,
//	})
//
//	hooks := &relay.Hooks{
//	    OnTagsReassigned: func(ctx context.Context, added, removed []relay.Tag) error {
//	        log.Printf("gained %d tags, lost %d", len(added), len(removed))
//	        return nil
//	    },
//	}
//
//	coord, err := relay.NewCoordinator(&cfg, ring, factory,
//	    relay.WithHooks(hooks),
//	)
//
// See the examples/ directory for complete working examples.
package relay
