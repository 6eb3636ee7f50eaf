package constants

// FileStatus is the canonical processing status for rows in invoice_file.
type FileStatus string

// Stable values (store these exact strings in DB).
const (
	FileStatusUnprocessed FileStatus = "UNPROCESSED" // imported, not yet submitted to a batch
	FileStatusProcessing  FileStatus = "PROCESSING"  // claimed by a batch run; recoverable by re-submission
	FileStatusProcessed   FileStatus = "PROCESSED"   // terminal success
	FileStatusFailed      FileStatus = "FAILED"      // terminal failure
)

// IsTerminal reports whether the status permits no further automatic transition.
func (s FileStatus) IsTerminal() bool {
	return s == FileStatusProcessed || s == FileStatusFailed
}
