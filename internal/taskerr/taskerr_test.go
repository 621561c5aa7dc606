package taskerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		wantKind Kind
	}{
		{name: "fatal record kept", err: NewFatal("a", "boom", nil), wantKind: Fatal},
		{name: "wrapped transient kept", err: fmt.Errorf("wrap: %w", NewTransient("a", "flaky", nil)), wantKind: Transient},
		{name: "context canceled", err: context.Canceled, wantKind: Cancelled},
		{name: "deadline exceeded", err: fmt.Errorf("get: %w", context.DeadlineExceeded), wantKind: Transient},
		{name: "untyped error", err: errors.New("connection reset"), wantKind: Transient},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := Classify("a", tc.err)
			require.NotNil(t, rec)
			assert.Equal(t, tc.wantKind, rec.Kind)
			assert.Equal(t, "a", rec.ID)
		})
	}

	assert.Nil(t, Classify("a", nil))
}

func TestClassify_FillsMissingID(t *testing.T) {
	orig := &Error{Kind: Fatal, Message: "budget"}
	rec := Classify("node-7", orig)

	assert.Equal(t, "node-7", rec.ID)
	assert.Empty(t, orig.ID, "the original record must not be mutated")
}

func TestError_Unwrap(t *testing.T) {
	rec := NewFatal("x", "out of calls", ErrBudgetExhausted)

	assert.True(t, errors.Is(rec, ErrBudgetExhausted))
	assert.True(t, IsKind(fmt.Errorf("outer: %w", rec), Fatal))
	assert.False(t, IsKind(rec, Transient))
	assert.False(t, IsKind(errors.New("plain"), Fatal))
	assert.Contains(t, rec.Error(), `fatal error at "x"`)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "kind(0)", Kind(0).String())
}

func TestKind_MarshalText(t *testing.T) {
	data, err := json.Marshal(NewTransient("a", "flaky", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"transient","id":"a","message":"flaky"}`, string(data))
}
