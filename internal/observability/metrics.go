package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsqwire",
			Subsystem: "conn",
			Name:      "frames_received_total",
			Help:      "Frames decoded from nsqd, by frame type.",
		},
		[]string{"type"},
	)
	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsqwire",
			Subsystem: "conn",
			Name:      "commands_sent_total",
			Help:      "Commands written to nsqd, by command.",
		},
		[]string{"command"},
	)
	bytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nsqwire",
			Subsystem: "conn",
			Name:      "bytes_received_total",
			Help:      "Frame payload bytes received from nsqd.",
		},
	)
	bytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nsqwire",
			Subsystem: "conn",
			Name:      "bytes_sent_total",
			Help:      "Body bytes sent with length-prefixed commands.",
		},
	)
	readErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsqwire",
			Subsystem: "conn",
			Name:      "read_errors_total",
			Help:      "Failed frame reads, by reason.",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesReceived, commandsSent, bytesReceived, bytesSent, readErrors)
	})
}

func RecordFrameReceived(frameType string, payloadLen int) {
	RegisterMetrics()
	framesReceived.WithLabelValues(frameType).Inc()
	bytesReceived.Add(float64(payloadLen))
}

func RecordCommandSent(command string, bodyLen int) {
	RegisterMetrics()
	commandsSent.WithLabelValues(command).Inc()
	if bodyLen > 0 {
		bytesSent.Add(float64(bodyLen))
	}
}

func RecordReadError(reason string) {
	RegisterMetrics()
	readErrors.WithLabelValues(reason).Inc()
}
