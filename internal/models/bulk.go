package models

// BulkItemIssue records why one document in a batch was skipped or failed.
type BulkItemIssue struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkOperationResult aggregates per-item outcomes of a batch lifecycle operation.
// One item failing never fails the batch; cancelled batches mark unstarted
// items as skipped.
type BulkOperationResult struct {
	OperationID string          `json:"operationId"`
	Succeeded   []string        `json:"succeeded"`
	Skipped     []BulkItemIssue `json:"skipped"`
	Failed      []BulkItemIssue `json:"failed"`
}
