package server

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Metrics holds the server's process-local counters. They feed the ops
// endpoint's Prometheus text exposition.
type Metrics struct {
	ConnectionsTotal  atomic.Int64
	ConnectionsActive atomic.Int64
	RecordsTotal      atomic.Int64
	ProtocolErrors    atomic.Int64
	BlocksSet         atomic.Int64
	EditsRejected     atomic.Int64
	Broadcasts        atomic.Int64
	QueueOverflows    atomic.Int64
	ChatDropped       atomic.Int64
}

// WritePrometheus emits the counters in minimal Prometheus exposition
// format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %d\n", name, v)
	}

	counter("craftwell_connections_total", "Connections accepted since start.", m.ConnectionsTotal.Load())
	gauge("craftwell_connections_active", "Currently open connections.", m.ConnectionsActive.Load())
	counter("craftwell_records_total", "Protocol records decoded.", m.RecordsTotal.Load())
	counter("craftwell_protocol_errors_total", "Malformed records that closed their connection.", m.ProtocolErrors.Load())
	counter("craftwell_blocks_set_total", "Block edits applied to the world.", m.BlocksSet.Load())
	counter("craftwell_edits_rejected_total", "Block edits rejected as out of range.", m.EditsRejected.Load())
	counter("craftwell_broadcasts_total", "Events fanned out to connections.", m.Broadcasts.Load())
	counter("craftwell_queue_overflows_total", "Connections dropped for a full outbound queue.", m.QueueOverflows.Load())
	counter("craftwell_chat_dropped_total", "Chat records dropped by the rate limiter.", m.ChatDropped.Load())
}
