package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name   string
		cmd    Command
		reason string
	}{
		{
			name:   "update retries zero",
			cmd:    UpdateRetries{Key: 7, Retries: 0},
			reason: "Expected to update retries for job with key '7' with a positive amount of retries, but the amount given was '0'",
		},
		{
			name:   "activate blank type",
			cmd:    ActivateBatch{MaxJobsToActivate: 1, Timeout: 10},
			reason: "Expected to activate job batch with type to be present, but it was blank",
		},
		{
			name:   "activate zero max",
			cmd:    ActivateBatch{JobType: "pay", Timeout: 10},
			reason: "Expected to activate job batch with max jobs to activate to be greater than zero, but it was '0'",
		},
		{
			name:   "activate negative timeout",
			cmd:    ActivateBatch{JobType: "pay", MaxJobsToActivate: 1, Timeout: -5},
			reason: "Expected to activate job batch with timeout to be greater than zero, but it was '-5'",
		},
		{
			name:   "create without retries",
			cmd:    Create{Job: Job{Type: "pay"}},
			reason: "Expected to create job with a positive amount of retries, but the amount given was '0'",
		},
		{
			name:   "update timeout zero",
			cmd:    UpdateTimeout{Key: 3},
			reason: "Expected to update timeout for job with key '3' with a positive timeout, but the timeout given was '0'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.cmd)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			rej := RejectionFromError(err)
			assert.Equal(t, RejectInvalidArgument, rej.Type)
			assert.Equal(t, tt.reason, rej.Reason)
		})
	}
}

func TestCommandValidationAccepts(t *testing.T) {
	cmds := []Command{
		Complete{Key: 1},
		Fail{Key: 1, Retries: 0},
		Cancel{Key: 1},
		UpdateRetries{Key: 1, Retries: 2},
		ThrowError{Key: 1, ErrorCode: "E"},
		TimeOut{Key: 1},
		Yield{Key: 1},
		UpdateTimeout{Key: 1, Timeout: 100},
		RecurAfterBackoff{Key: 1},
		ActivateBatch{JobType: "pay", MaxJobsToActivate: 1, Timeout: 100},
		Create{Job: Job{Type: "pay", Retries: 3}},
	}
	for _, cmd := range cmds {
		assert.NoError(t, ValidateMessage(cmd), cmd.Type())
	}
}

func TestNewRejectionReason(t *testing.T) {
	rej := NewRejection(RejectNotFound, IntentComplete, 999, "no such job was found")
	assert.Equal(t, "Expected to complete job with key '999', but no such job was found", rej.Reason)
	assert.Equal(t, "NOT_FOUND: Expected to complete job with key '999', but no such job was found", rej.String())
}

func TestDecodeCommand(t *testing.T) {
	in := Fail{Key: 42, Retries: 2, ErrorMessage: "boom", RetryBackoff: 500}
	raw, err := Marshal(in)
	require.NoError(t, err)

	out, err := DecodeCommand(ValueJob, IntentFail, raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	batch := ActivateBatch{JobType: "pay", Worker: "w", MaxJobsToActivate: 3, Timeout: 1000, TenantIDs: []string{"t1"}}
	raw, err = Marshal(batch)
	require.NoError(t, err)
	decoded, err := DecodeCommand(ValueJobBatch, IntentActivate, raw)
	require.NoError(t, err)
	assert.Equal(t, batch, decoded)

	_, err = DecodeCommand(ValueIncident, IntentCreated, raw)
	assert.Error(t, err)
}

func TestEventFor(t *testing.T) {
	ev, ok := EventFor(IntentTimeOut)
	require.True(t, ok)
	assert.Equal(t, IntentTimedOut, ev)

	_, ok = EventFor(IntentCompleteElement)
	assert.False(t, ok)
}
