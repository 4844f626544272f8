// Package metrics holds the Prometheus collectors shared across the HTTP,
// RTSP, and RTP components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts outbound HTTP requests made by httpclient,
	// labeled by method and status class ("2xx", "3xx", "4xx", "5xx", "err").
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgo_http_requests_total",
		Help: "HTTP requests made by the streaming client, by method and status class.",
	}, []string{"method", "status_class"})

	// HTTPRedirectsTotal counts redirects followed by httpclient.URLStream.
	HTTPRedirectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamgo_http_redirects_total",
		Help: "Redirects followed while opening a URL stream.",
	})

	// HTTPChunkErrorsTotal counts malformed chunked-encoding bodies.
	HTTPChunkErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamgo_http_chunk_errors_total",
		Help: "Chunked transfer-encoding decode errors.",
	})

	// RTSPClients is a gauge of currently connected RTSP clients.
	RTSPClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamgo_rtsp_clients",
		Help: "Number of RTSP clients currently connected to the server.",
	})

	// RTPPacketsSentTotal counts RTP packets successfully sent.
	RTPPacketsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamgo_rtp_packets_sent_total",
		Help: "RTP packets sent by the streamer.",
	})

	// RTPPacketsDroppedTotal counts RTP packets dropped due to send errors.
	RTPPacketsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamgo_rtp_packets_dropped_total",
		Help: "RTP packets dropped because the UDP send failed.",
	})

	// RTPSendSeconds observes the wall time spent in one send_rtp_packet tick.
	RTPSendSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamgo_rtp_send_seconds",
		Help:    "Time spent packetizing and sending one RTP packet.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	// RTPSlowTicksTotal counts ticks that exceeded the 20ms send budget.
	RTPSlowTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamgo_rtp_slow_ticks_total",
		Help: "RTP send ticks that exceeded the 20ms warning threshold.",
	})
)

// Registry is a private registry pre-populated with every collector above;
// callers wire it into an HTTP /metrics handler (see cmd/streamserver).
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRedirectsTotal,
		HTTPChunkErrorsTotal,
		RTSPClients,
		RTPPacketsSentTotal,
		RTPPacketsDroppedTotal,
		RTPSendSeconds,
		RTPSlowTicksTotal,
	)
}
