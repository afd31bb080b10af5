// Package broadcast fans session events out to live observers.
//
// Delivery is best effort: each subscriber owns a bounded buffer and a
// message that does not fit is dropped for that subscriber only. Publishers
// never block, so a stalled observer cannot slow down a session. New
// subscribers receive no history; they backfill from the transcript.
package broadcast
