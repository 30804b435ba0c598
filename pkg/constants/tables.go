package constants

// KV table names. Work-order state is encoded by which of these hold an id.
const (
	TableTimestamps     = "wo-timestamps"
	TableRequests       = "wo-requests"
	TableScheduled      = "wo-scheduled"
	TableProcessing     = "wo-processing"
	TableProcessed      = "wo-processed"
	TableResponses      = "wo-responses"
	TableReceipts       = "wo-receipts"
	TableReceiptUpdates = "wo-receipt-updates"
	TableWorkers        = "workers"
	TableRegistries     = "registries"
)

// WorkOrderTables every table holding per-work-order state, in purge order
var WorkOrderTables = []string{
	TableProcessed,
	TableProcessing,
	TableScheduled,
	TableRequests,
	TableResponses,
	TableReceipts,
	TableReceiptUpdates,
	TableTimestamps,
}
