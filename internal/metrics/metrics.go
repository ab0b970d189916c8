package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Packetizer metrics
	datagramsPacketizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_datagrams_packetized_total",
		Help: "Total datagrams emitted by the packetizer",
	}, []string{"stream_id"})

	bytesPacketizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_bytes_packetized_total",
		Help: "Total payload bytes emitted by the packetizer",
	}, []string{"stream_id"})

	obusFragmentedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_obus_fragmented_total",
		Help: "OBUs that had to be split across datagrams",
	}, []string{"stream_id"})

	encodingErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_encoding_errors_total",
		Help: "OBUs skipped because a length exceeded the LEB128 ceiling",
	}, []string{"stream_id"})

	// Depacketizer metrics
	temporalUnitsReassembledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_temporal_units_reassembled_total",
		Help: "Complete temporal-unit payloads handed to the caller",
	}, []string{"stream_id"})

	partialsDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_partials_discarded_total",
		Help: "Partial reassembly buffers discarded on loss discontinuity",
	}, []string{"stream_id"})

	orphanFragmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_orphan_fragments_total",
		Help: "Continuation fragments dropped because their start was lost",
	}, []string{"stream_id"})

	malformedDatagramsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_malformed_datagrams_total",
		Help: "Datagrams rejected as malformed",
	}, []string{"stream_id"})

	// Transport metrics
	packetsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_packets_received_total",
		Help: "RTP packets received per stream",
	}, []string{"stream_id"})

	packetsLostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av1rtp_packets_lost_total",
		Help: "RTP packets detected as lost per stream",
	}, []string{"stream_id"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "av1rtp_sessions_active_total",
		Help: "Number of active send/receive sessions",
	})
)

// IncDatagramsPacketized records one emitted datagram and its size.
func IncDatagramsPacketized(streamID string, bytes int) {
	datagramsPacketizedTotal.WithLabelValues(streamID).Inc()
	bytesPacketizedTotal.WithLabelValues(streamID).Add(float64(bytes))
}

// IncOBUsFragmented records an OBU split across datagrams.
func IncOBUsFragmented(streamID string) {
	obusFragmentedTotal.WithLabelValues(streamID).Inc()
}

// IncEncodingErrors records an OBU skipped for exceeding the varint ceiling.
func IncEncodingErrors(streamID string) {
	encodingErrorsTotal.WithLabelValues(streamID).Inc()
}

// IncTemporalUnitsReassembled records one emitted temporal unit.
func IncTemporalUnitsReassembled(streamID string) {
	temporalUnitsReassembledTotal.WithLabelValues(streamID).Inc()
}

// IncPartialsDiscarded records a reassembly buffer dropped on discontinuity.
func IncPartialsDiscarded(streamID string) {
	partialsDiscardedTotal.WithLabelValues(streamID).Inc()
}

// IncOrphanFragments records a dropped orphan continuation.
func IncOrphanFragments(streamID string) {
	orphanFragmentsTotal.WithLabelValues(streamID).Inc()
}

// IncMalformedDatagrams records a rejected datagram.
func IncMalformedDatagrams(streamID string) {
	malformedDatagramsTotal.WithLabelValues(streamID).Inc()
}

// IncPacketsReceived records one received RTP packet.
func IncPacketsReceived(streamID string) {
	packetsReceivedTotal.WithLabelValues(streamID).Inc()
}

// AddPacketsLost records newly detected packet loss.
func AddPacketsLost(streamID string, n uint64) {
	packetsLostTotal.WithLabelValues(streamID).Add(float64(n))
}

// AddSessionsActive adjusts the active session gauge by delta.
func AddSessionsActive(delta float64) {
	sessionsActive.Add(delta)
}

// DeleteStreamMetrics removes all metrics for a stream when it ends.
func DeleteStreamMetrics(streamID string) {
	labels := prometheus.Labels{"stream_id": streamID}
	datagramsPacketizedTotal.DeletePartialMatch(labels)
	bytesPacketizedTotal.DeletePartialMatch(labels)
	obusFragmentedTotal.DeletePartialMatch(labels)
	encodingErrorsTotal.DeletePartialMatch(labels)
	temporalUnitsReassembledTotal.DeletePartialMatch(labels)
	partialsDiscardedTotal.DeletePartialMatch(labels)
	orphanFragmentsTotal.DeletePartialMatch(labels)
	malformedDatagramsTotal.DeletePartialMatch(labels)
	packetsReceivedTotal.DeletePartialMatch(labels)
	packetsLostTotal.DeletePartialMatch(labels)
}
