package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesProcessed counts messages acknowledged after their full
	// side-effect chain succeeded.
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainpipe_messages_processed_total",
		Help: "Messages acknowledged after successful processing.",
	}, []string{"consumer"})

	// MessagesDropped counts undecodable messages acknowledged to stop
	// infinite redelivery.
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainpipe_messages_dropped_total",
		Help: "Messages dropped as permanently undecodable.",
	}, []string{"consumer"})

	// MessagesRetried counts transient failures left for broker redelivery.
	MessagesRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainpipe_messages_retried_total",
		Help: "Messages left unacknowledged for redelivery.",
	}, []string{"consumer"})

	// Redeliveries observes the broker-reported delivery attempt count, the
	// visible half of the retry loop the broker runs for us.
	Redeliveries = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chainpipe_message_deliveries",
		Help:    "Delivery attempts per processed message.",
		Buckets: []float64{1, 2, 3, 5, 10, 25, 100},
	}, []string{"consumer"})

	// TicksWritten counts price ticks durably inserted by the sink.
	TicksWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainpipe_ticks_written_total",
		Help: "Price ticks inserted into the sink store.",
	})

	// EventsPublished counts canonical events published by the source.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainpipe_events_published_total",
		Help: "Canonical events published to the stream.",
	}, []string{"subject"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
