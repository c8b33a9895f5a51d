// Package analytics computes point-in-time aggregates over accumulated
// progression history: daily journey snapshots, per-stage breakdowns, the
// bottleneck report, flow distribution, and the completion-time histogram.
//
// Snapshots are recomputed on demand, never streamed; reads are eventually
// consistent with in-flight progression writes. Recomputation for a journey
// is guarded by a distributed lock so concurrent callers don't double work.
//
// Repository implementations live in repository/postgres/ and
// repository/memory/.
package analytics
