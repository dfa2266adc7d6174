// Package testing bundles the test infrastructure the library's own suites
// run on: an embedded NATS server with JetStream, KV bucket helpers, and a
// types.Logger that writes through t.Logf. Import it under a distinct name,
// the way net/http/httptest is used next to net/http.
//
// Helpers:
//   - StartEmbeddedNATS: in-process JetStream server on a random port
//   - NewJetStream: JetStream context over a test connection
//   - CreateKVBucket: memory-backed KV bucket
//   - NewTestLogger: types.Logger writing through t.Logf
//
// Example:
//
//	import (
//	    "testing"
//	    relaytest "github.com/arloliu/relay/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := relaytest.StartEmbeddedNATS(t)
//	    js := relaytest.NewJetStream(t, nc)
//	    ...
//	}
package testing
