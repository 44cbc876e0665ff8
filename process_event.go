package job

// ProcessEvent is the follow-up command handed to the workflow runtime when a
// job finishes or throws an error that was caught.
type ProcessEvent struct {
	JobKey               int64  `msgpack:"jobKey" json:"jobKey"`
	ElementInstanceKey   int64  `msgpack:"elementInstanceKey" json:"elementInstanceKey"`
	ElementID            string `msgpack:"elementId" json:"elementId"`
	ProcessInstanceKey   int64  `msgpack:"processInstanceKey" json:"processInstanceKey"`
	ProcessDefinitionKey int64  `msgpack:"processDefinitionKey" json:"processDefinitionKey"`
	BpmnProcessID        string `msgpack:"bpmnProcessId" json:"bpmnProcessId"`
	TenantID             string `msgpack:"tenantId" json:"tenantId"`
	Variables            []byte `msgpack:"variables" json:"variables,omitempty"`
	ErrorCode            string `msgpack:"errorCode" json:"errorCode,omitempty"`
	ErrorMessage         string `msgpack:"errorMessage" json:"errorMessage,omitempty"`
	CatchElementID       string `msgpack:"catchElementId" json:"catchElementId,omitempty"`
	CatchElementInstance int64  `msgpack:"catchElementInstanceKey" json:"catchElementInstanceKey,omitempty"`
}

// NewProcessEvent copies the scope linkage of j.
func NewProcessEvent(j *Job) ProcessEvent {
	return ProcessEvent{
		JobKey:               j.Key,
		ElementInstanceKey:   j.ElementInstanceKey,
		ElementID:            j.ElementID,
		ProcessInstanceKey:   j.ProcessInstanceKey,
		ProcessDefinitionKey: j.ProcessDefinitionKey,
		BpmnProcessID:        j.BpmnProcessID,
		TenantID:             j.TenantID,
	}
}
