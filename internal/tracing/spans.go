package tracing

// Span names.
const (
	SpanPublish  = "gateway.publish"
	SpanStart    = "gateway.start"
	SpanStop     = "gateway.stop"
	SpanSinkSave = "sink.save"
)

// Span attribute keys.
const (
	AttrEventName        = "event.name"
	AttrEventCategory    = "event.category"
	AttrGatewayEndpoints = "gateway.endpoints"
	AttrDeliveries       = "gateway.deliveries"
	AttrDroppedKeys      = "event.dropped_keys"
	AttrSinkBatch        = "sink.batch_size"
)
