package metrics

import "net/http"

// Handler exposes the process-wide collector over HTTP.
func Handler() http.HandlerFunc {
	return Collector.Handler()
}

// Gateway metric handles, registered once at package init so every component
// shares the same series.
var (
	MessagesReceived = Collector.Counter(
		"chatgate_messages_received_total",
		"Inbound messages handed to the filter chain", "")
	MessagesDispatched = Collector.Counter(
		"chatgate_messages_dispatched_total",
		"Contexts accepted by the dispatch queue", "")
	MessagesHandled = Collector.Counter(
		"chatgate_messages_handled_total",
		"Contexts fully processed by a worker", "")
	SendFailures = Collector.Counter(
		"chatgate_send_failures_total",
		"Replies that failed platform delivery", "")
	PipelineFailures = Collector.Counter(
		"chatgate_pipeline_failures_total",
		"Handling pipeline errors", "")
	QueueDepth = Collector.Gauge(
		"chatgate_queue_depth",
		"Contexts waiting in the dispatch queue", "")
)

// DroppedFor returns the drop counter for one filter reason.
func DroppedFor(reason string) *Counter {
	return Collector.Counter(
		"chatgate_messages_dropped_total",
		"Messages dropped by the filter chain",
		`reason="`+reason+`"`)
}
