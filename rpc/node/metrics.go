package node

import (
	"fmt"

	"github.com/ValentinKolb/pKV/lib/verify"
	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// nodeMetrics holds the counters of one node. Every node has its own set so
// that several nodes can run in one process.
type nodeMetrics struct {
	set *metrics.Set

	received     *metrics.Counter
	decodeErrors *metrics.Counter
	duplicates   *metrics.Counter
	relayed      *metrics.Counter
	persisted    *metrics.Counter
	dropped      map[verify.Result]*metrics.Counter
	byType       map[common.MessageType]*metrics.Counter
}

func newNodeMetrics(peers func() int) *nodeMetrics {
	set := metrics.NewSet()
	m := &nodeMetrics{
		set:          set,
		received:     set.NewCounter("pkv_envelopes_received_total"),
		decodeErrors: set.NewCounter("pkv_envelopes_invalid_total"),
		duplicates:   set.NewCounter("pkv_envelopes_duplicate_total"),
		relayed:      set.NewCounter("pkv_envelopes_relayed_total"),
		persisted:    set.NewCounter("pkv_entries_persisted_total"),
		dropped:      make(map[verify.Result]*metrics.Counter),
		byType:       make(map[common.MessageType]*metrics.Counter),
	}
	for r := verify.InvalidData; r < verify.Verified; r++ {
		m.dropped[r] = set.NewCounter(fmt.Sprintf(`pkv_entries_dropped_total{reason=%q}`, r.String()))
	}
	for t := common.MsgTGet; t <= common.MsgTFunctionReturn; t++ {
		m.byType[t] = set.NewCounter(fmt.Sprintf(`pkv_envelopes_handled_total{type=%q}`, t.String()))
	}
	set.NewGauge("pkv_peers_connected", func() float64 { return float64(peers()) })
	return m
}

func (m *nodeMetrics) drop(r verify.Result) {
	if c, ok := m.dropped[r]; ok {
		c.Inc()
	}
}

func (m *nodeMetrics) handled(t common.MessageType) {
	if c, ok := m.byType[t]; ok {
		c.Inc()
	}
}

// Metrics returns the metric set of the node, e.g. to expose it with WritePrometheus
func (n *Node) Metrics() *metrics.Set {
	return n.metrics.set
}
