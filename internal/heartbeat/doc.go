// Package heartbeat provides liveness announcements for coordinator members
// through NATS KV.
//
// Each member periodically writes a small JSON beat to a KV bucket whose TTL
// is a multiple of the announce interval. Live members therefore always have
// a key present; a crashed member's key expires after a few missed beats and
// the membership watchers see it disappear.
//
// # Announcer Lifecycle
//
//  1. Create announcer with New(kv, prefix, memberID, role, interval)
//  2. Start announcing with Start(ctx)
//  3. Stop announcing with Stop()
//
// Example:
//
//	ann := heartbeat.New(kv, "member", memberID, "writer", 2*time.Second)
//	if err := ann.Start(ctx); err != nil {
//	    return err
//	}
//	defer ann.Stop()
//
// # Key Format
//
// Beats are stored in NATS KV with the following key format:
//
//	{prefix}.{memberID}
//
// Example: "member.2f9c7f2a-22f2-47f1-9c9a-0d8b2a8f5a11"
//
// # Crash Detection
//
// The KV bucket should be created with a TTL of ~3x the announce interval.
// A member that misses three consecutive beats is treated as gone when its
// key expires. Stop deletes the key immediately so clean shutdowns are
// observed without waiting for the TTL.
package heartbeat
