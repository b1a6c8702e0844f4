package metrics

import "github.com/prometheus/client_golang/prometheus"

// Transport collects FDSU-level counters: missing-sequence bursts, stall
// timeouts, and bytes moved.
type Transport struct {
	missTotal    prometheus.Counter
	timeoutTotal prometheus.Counter
	bytesTotal   prometheus.Counter
}

func NewTransport() *Transport { return NewTransportFor(prometheus.DefaultRegisterer) }

func NewTransportFor(reg prometheus.Registerer) *Transport {
	t := &Transport{
		missTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdsu_missing_seqs_total",
			Help: "Total sequence numbers retransmitted across all FDSU streams.",
		}),
		timeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdsu_timeout_total",
			Help: "Total FDSU streams that gave up and fell back to the slow path.",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdsu_bytes_total",
			Help: "Total payload bytes moved by FDSU (both directions).",
		}),
	}
	t.missTotal = register(reg, t.missTotal).(prometheus.Counter)
	t.timeoutTotal = register(reg, t.timeoutTotal).(prometheus.Counter)
	t.bytesTotal = register(reg, t.bytesTotal).(prometheus.Counter)
	return t
}

func (t *Transport) AddMiss(n int)     { t.missTotal.Add(float64(n)) }
func (t *Transport) IncTimeout()       { t.timeoutTotal.Inc() }
func (t *Transport) AddBytes(n int)    { t.bytesTotal.Add(float64(n)) }
