package messaging

// Subject constants for the reportsync message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	SubjectRunsCompleted = "reportsync.runs.completed" // Run summary after every run
	SubjectRunsFailed    = "reportsync.runs.failed"    // Setup-level failure
)

// Header names attached to published run messages.
const (
	HeaderRunID     = "Reportsync-Run-Id"
	HeaderStatus    = "Reportsync-Status"
	HeaderSignature = "Reportsync-Signature"
)

// RunSubject returns the subject a run summary with the given status is published on.
func RunSubject(status string) string {
	if status == "failed" {
		return SubjectRunsFailed
	}
	return SubjectRunsCompleted
}
