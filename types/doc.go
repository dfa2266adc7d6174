// Package types provides core type definitions and interfaces for the Relay library.
//
// This package contains shared types that are used across multiple packages in
// the Relay library. Keeping them in a separate package avoids import cycles
// between the main relay package and its internal implementations.
//
// Key types:
//   - Tag, Offset: partition key and stream position
//   - Message, ReceivedMessage: transport payloads
//   - Transport: broker client contract
//   - OffsetStore, OffsetHandle: committed-offset persistence
//   - EventSource, EventStream: application event feed
//   - Ownership: cluster tag-ownership oracle
//   - Pipeline: restartable unit of work
//   - Logger, MetricsCollector, Hooks: observability surfaces
package types
