package acquire

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "acquire",
			Name:      "bytes_total",
			Help:      "Total artifact bytes written to disk",
		},
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "acquire",
			Name:      "downloads_total",
			Help:      "Artifact acquisitions by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(downloadBytesTotal, downloadsTotal)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case err == ErrTooManyRedirects:
		return "redirects"
	case IsHTTPError(err):
		return "http"
	case IsInsufficientStorage(err):
		return "storage"
	default:
		return "io"
	}
}
