package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_Generate(t *testing.T) {
	m := NewMockModel("mock-1")
	m.AddResponse("hello", "world")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Text: "hello"}},
	})
	resp, err := Collect(context.Background(), respCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Len(t, m.Requests(), 1)
	assert.Equal(t, Info{Name: "mock-1", Provider: "mock"}, m.Info())
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Text: "hi"}},
		Stream:   true,
	})

	var partials int
	var final Response
	for r := range respCh {
		if r.Partial {
			partials++
			continue
		}
		final = r
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, len("Mock response to: hi"), partials)
	assert.Equal(t, "Mock response to: hi", final.Text)
}

func TestMockModel_Errors(t *testing.T) {
	m := NewMockModel("mock")

	respCh, errCh := m.Generate(context.Background(), Request{})
	_, err := Collect(context.Background(), respCh, errCh)
	assert.ErrorIs(t, err, ErrEmptyRequest)

	boom := errors.New("boom")
	m.FailWith(boom)
	respCh, errCh = m.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Text: "x"}},
	})
	_, err = Collect(context.Background(), respCh, errCh)
	assert.ErrorIs(t, err, boom)
}

func TestCollect_PartialOnly(t *testing.T) {
	respCh := make(chan Response, 2)
	errCh := make(chan error)
	respCh <- Response{Partial: true, Text: "ab"}
	respCh <- Response{Partial: true, Text: "c"}
	close(respCh)
	close(errCh)

	resp, err := Collect(context.Background(), respCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Text)
}

func TestCollect_NoResponse(t *testing.T) {
	respCh := make(chan Response)
	errCh := make(chan error)
	close(respCh)
	close(errCh)

	_, err := Collect(context.Background(), respCh, errCh)
	assert.Error(t, err)
}
