package cnst

// Tracer names used across the hub
const (
	// TraceBroadcast is the tracer name for the producer loop
	TraceBroadcast = "castwall/broadcast"
	// TraceServer is the tracer name for HTTP handlers
	TraceServer = "castwall/server"
)

// Span names
const (
	SpanBroadcastTick    = "broadcast.tick"
	SpanBroadcastCapture = "broadcast.capture"
	SpanBroadcastCompose = "broadcast.compose"
	SpanBroadcastEncode  = "broadcast.encode"
	SpanBroadcastPublish = "broadcast.publish"
)
