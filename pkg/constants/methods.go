package constants

// JSON-RPC method names served by the listener
const (
	MethodWorkOrderSubmit    = "WorkOrderSubmit"
	MethodWorkOrderGetResult = "WorkOrderGetResult"

	MethodWorkerRegister   = "WorkerRegister"
	MethodWorkerUpdate     = "WorkerUpdate"
	MethodWorkerSetStatus  = "WorkerSetStatus"
	MethodWorkerRetrieve   = "WorkerRetrieve"
	MethodWorkerLookUp     = "WorkerLookUp"
	MethodWorkerLookUpNext = "WorkerLookUpNext"

	MethodRegistryRetrieve   = "WorkerRegistryRetrieve"
	MethodRegistryLookUp     = "WorkerRegistryLookUp"
	MethodRegistryLookUpNext = "WorkerRegistryLookUpNext"

	MethodReceiptCreate         = "WorkOrderReceiptCreate"
	MethodReceiptUpdate         = "WorkOrderReceiptUpdate"
	MethodReceiptRetrieve       = "WorkOrderReceiptRetrieve"
	MethodReceiptUpdateRetrieve = "WorkOrderReceiptUpdateRetrieve"
	MethodReceiptLookUp         = "WorkOrderReceiptLookUp"
	MethodReceiptLookUpNext     = "WorkOrderReceiptLookUpNext"
)
