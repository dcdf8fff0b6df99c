package events

// Topic constants for domain events emitted by the engine.
const (
	TopicQuoteSubmitted    = "quote.submitted"
	TopicQuoteFailed       = "quote.failed"
	TopicPaymentHandedOff  = "payment.handed_off"
	TopicPaymentCompleted  = "payment.completed"
	TopicPaymentCancelled  = "payment.cancelled"
	TopicPaymentWebhookHit = "payment.webhook_received"
)
