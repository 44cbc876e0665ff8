package job

import "fmt"

// ErrorType classifies why an incident was raised.
type ErrorType string

const (
	ErrorTypeJobNoRetries         ErrorType = "JOB_NO_RETRIES"
	ErrorTypeUnhandledErrorEvent  ErrorType = "UNHANDLED_ERROR_EVENT"
	ErrorTypeMessageSizeExceeded  ErrorType = "MESSAGE_SIZE_EXCEEDED"
	defaultNoRetriesMessage                 = "No more retries left."
	defaultUnhandledMessageFormat           = "An error was thrown with the code '%s' but not caught."
	defaultSizeExceededFormat               = "The job with key '%d' can not be activated, because with the variables it is larger than the configured message size. " +
		"Try to reduce the size by reducing the number of fetched variables or modifying the variable values."
)

// Incident records a job-domain condition that needs operator resolution.
type Incident struct {
	Key                  int64     `msgpack:"key" json:"key"`
	ErrorType            ErrorType `msgpack:"errorType" json:"errorType"`
	ErrorMessage         string    `msgpack:"errorMessage" json:"errorMessage"`
	JobKey               int64     `msgpack:"jobKey" json:"jobKey"`
	ElementInstanceKey   int64     `msgpack:"elementInstanceKey" json:"elementInstanceKey"`
	ElementID            string    `msgpack:"elementId" json:"elementId"`
	ProcessInstanceKey   int64     `msgpack:"processInstanceKey" json:"processInstanceKey"`
	ProcessDefinitionKey int64     `msgpack:"processDefinitionKey" json:"processDefinitionKey"`
	BpmnProcessID        string    `msgpack:"bpmnProcessId" json:"bpmnProcessId"`
	TenantID             string    `msgpack:"tenantId" json:"tenantId"`
	VariableScopeKey     int64     `msgpack:"variableScopeKey" json:"variableScopeKey"`
}

// DefaultIncidentMessage is the fallback message used when the job carries none.
func DefaultIncidentMessage(errType ErrorType, jobKey int64, errorCode string) string {
	switch errType {
	case ErrorTypeJobNoRetries:
		return defaultNoRetriesMessage
	case ErrorTypeUnhandledErrorEvent:
		return fmt.Sprintf(defaultUnhandledMessageFormat, errorCode)
	case ErrorTypeMessageSizeExceeded:
		return fmt.Sprintf(defaultSizeExceededFormat, jobKey)
	default:
		return string(errType)
	}
}

// NewIncident builds an incident that copies the scope linkage of the job.
// The job's own error message wins over the default, except for size
// incidents where the message describes the activation problem itself.
func NewIncident(key int64, errType ErrorType, jobKey int64, j *Job) Incident {
	inc := Incident{
		Key:                key,
		ErrorType:          errType,
		JobKey:             jobKey,
		ElementInstanceKey: NoElementInstance,
	}
	code := ""
	if j != nil {
		inc.ElementInstanceKey = j.ElementInstanceKey
		inc.ElementID = j.ElementID
		inc.ProcessInstanceKey = j.ProcessInstanceKey
		inc.ProcessDefinitionKey = j.ProcessDefinitionKey
		inc.BpmnProcessID = j.BpmnProcessID
		inc.TenantID = j.TenantID
		inc.VariableScopeKey = j.ElementInstanceKey
		code = j.ErrorCode
		if errType != ErrorTypeMessageSizeExceeded {
			inc.ErrorMessage = j.ErrorMessage
		}
	}
	if inc.ErrorMessage == "" {
		inc.ErrorMessage = DefaultIncidentMessage(errType, jobKey, code)
	}
	return inc
}
