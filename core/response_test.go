package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_BackendAndFrontendAreDistinct(t *testing.T) {
	out := NewOutcome()

	require.NoError(t, out.Backend.Set("score", 720))
	require.NoError(t, out.Frontend.Set("message", "approved"))

	assert.NotSame(t, out.Backend, out.Frontend)
	assert.Equal(t, []string{"score"}, out.Backend.Keys())
	assert.Equal(t, []string{"message"}, out.Frontend.Keys())
}

func TestOutcome_ControlFlags(t *testing.T) {
	out := NewOutcome()
	assert.False(t, out.Failed())
	assert.Nil(t, out.Errors())

	out.Fail("zip", "required", "zip is required")
	out.Goto("review")
	out.Complete()
	out.Reject("fraud")

	assert.True(t, out.Failed())
	errs := out.Errors()
	require.Len(t, errs, 1)
	errs[0].Code = "changed"
	assert.Equal(t, "required", out.Errors()[0].Code)
	assert.Equal(t, "review", out.NextStep())
	assert.True(t, out.Completed())
	rejected, reason := out.Rejected()
	assert.True(t, rejected)
	assert.Equal(t, "fraud", reason)
}

func TestResponse_Status(t *testing.T) {
	assert.True(t, (&Response{Status: ResponseAccepted}).Valid())
	assert.True(t, (&Response{Status: ResponseCompleted}).Valid())
	assert.False(t, (&Response{Status: ResponseInvalid}).Valid())
	assert.False(t, (&Response{Status: ResponseRejected}).Valid())
	assert.True(t, (&Response{Status: ResponseRejected}).Committable())
	assert.False(t, (&Response{Status: ResponseInvalid}).Committable())
}

func TestFieldError_Error(t *testing.T) {
	assert.Equal(t, "zip: required: missing", FieldError{Field: "zip", Code: "required", Message: "missing"}.Error())
	assert.Equal(t, "gate: closed", FieldError{Code: "gate", Message: "closed"}.Error())
}
