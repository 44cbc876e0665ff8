package job

// RecordType distinguishes commands, events and rejections in the log.
type RecordType string

const (
	RecordCommand          RecordType = "COMMAND"
	RecordEvent            RecordType = "EVENT"
	RecordCommandRejection RecordType = "COMMAND_REJECTION"
)

// ValueType names the aggregate a record value belongs to.
type ValueType string

const (
	ValueJob          ValueType = "JOB"
	ValueJobBatch     ValueType = "JOB_BATCH"
	ValueIncident     ValueType = "INCIDENT"
	ValueProcessEvent ValueType = "PROCESS_EVENT"
)

// Intent is the verb of a record.
type Intent string

// job commands
const (
	IntentCreate            Intent = "CREATE"
	IntentComplete          Intent = "COMPLETE"
	IntentFail              Intent = "FAIL"
	IntentCancel            Intent = "CANCEL"
	IntentUpdateRetries     Intent = "UPDATE_RETRIES"
	IntentThrowError        Intent = "THROW_ERROR"
	IntentTimeOut           Intent = "TIME_OUT"
	IntentYield             Intent = "YIELD"
	IntentUpdateTimeout     Intent = "UPDATE_TIMEOUT"
	IntentRecurAfterBackoff Intent = "RECUR_AFTER_BACKOFF"
)

// job events
const (
	IntentCreated              Intent = "CREATED"
	IntentCompleted            Intent = "COMPLETED"
	IntentFailed               Intent = "FAILED"
	IntentCanceled             Intent = "CANCELED"
	IntentRetriesUpdated       Intent = "RETRIES_UPDATED"
	IntentErrorThrown          Intent = "ERROR_THROWN"
	IntentTimedOut             Intent = "TIMED_OUT"
	IntentYielded              Intent = "YIELDED"
	IntentTimeoutUpdated       Intent = "TIMEOUT_UPDATED"
	IntentRecurredAfterBackoff Intent = "RECURRED_AFTER_BACKOFF"
)

// batch, incident and process follow-ups
const (
	IntentActivate          Intent = "ACTIVATE"
	IntentActivated         Intent = "ACTIVATED"
	IntentIncidentCreated   Intent = "CREATED"
	IntentCompleteElement   Intent = "COMPLETE_ELEMENT"
	IntentTriggerErrorEvent Intent = "TRIGGER_ERROR_EVENT"
)

// Verb is the phrase used in rejection reasons for the command intent.
func (i Intent) Verb() string {
	switch i {
	case IntentCreate:
		return "create"
	case IntentComplete:
		return "complete"
	case IntentFail:
		return "fail"
	case IntentCancel:
		return "cancel"
	case IntentUpdateRetries:
		return "update retries for"
	case IntentThrowError:
		return "throw an error for"
	case IntentTimeOut:
		return "time out"
	case IntentYield:
		return "yield"
	case IntentUpdateTimeout:
		return "update timeout for"
	case IntentRecurAfterBackoff:
		return "recur"
	case IntentActivate:
		return "activate"
	default:
		return string(i)
	}
}

// EventFor maps a job command intent to the event it produces when accepted.
func EventFor(cmd Intent) (Intent, bool) {
	switch cmd {
	case IntentCreate:
		return IntentCreated, true
	case IntentComplete:
		return IntentCompleted, true
	case IntentFail:
		return IntentFailed, true
	case IntentCancel:
		return IntentCanceled, true
	case IntentUpdateRetries:
		return IntentRetriesUpdated, true
	case IntentThrowError:
		return IntentErrorThrown, true
	case IntentTimeOut:
		return IntentTimedOut, true
	case IntentYield:
		return IntentYielded, true
	case IntentUpdateTimeout:
		return IntentTimeoutUpdated, true
	case IntentRecurAfterBackoff:
		return IntentRecurredAfterBackoff, true
	case IntentActivate:
		return IntentActivated, true
	default:
		return "", false
	}
}
