package schema

// Event type constants for the execution processing history.
const (
	EventExecutionRecorded      = "execution_recorded"
	EventOutputValidated        = "output_validated"
	EventOutputValidationFailed = "output_validation_failed"
	EventOutputMasked           = "output_masked"
	EventRuleMatched            = "rule_matched"
	EventExecutionsPurged       = "executions_purged"
)
