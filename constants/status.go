package constants

// RecordStatus is the canonical status for receipt records.
type RecordStatus string

// Stable values (store these exact strings in the table).
const (
	StatusPending    RecordStatus = "PENDING"    // created by the upload collaborator
	StatusProcessing RecordStatus = "PROCESSING" // claimed by a pipeline worker
	StatusProcessed  RecordStatus = "PROCESSED"  // terminal success
	StatusFailed     RecordStatus = "FAILED"     // terminal failure
)

// Terminal reports whether no further transition is allowed from s.
func (s RecordStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanTransition reports whether the pipeline may move a record from one
// status to another. Transitions are monotonic: a record never returns to
// PENDING, and terminal states admit nothing.
func CanTransition(from, to RecordStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusProcessed || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessed || to == StatusFailed
	default:
		return false
	}
}
