package property

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{nil, ClassNone},
		{fmt.Errorf("review: %w", ErrValidation), ClassInput},
		{ErrNotFound, ClassNotFound},
		{ErrTerminalState, ClassTerminal},
		{ErrCodeExpired, ClassTerminal},
		{ErrCodeUsed, ClassTerminal},
		{ErrSignerConfigMissing, ClassAdmin},
		{&LedgerWriteFailedError{Attempts: []Attempt{{Entrypoint: "storeHash", Err: errors.New("reverted")}}}, ClassRetry},
		{&LedgerMismatchError{Expected: "0xa", Found: "0xb"}, ClassRetry},
		{ErrCodeMismatch, ClassInput},
		{errors.New("boom"), ClassInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

func TestLedgerWriteFailedError_UnwrapsAttempts(t *testing.T) {
	cause := errors.New("execution reverted")
	err := fmt.Errorf("push: %w", &LedgerWriteFailedError{Attempts: []Attempt{
		{Entrypoint: "requestRegistration", Err: cause},
		{Entrypoint: "storeHash", Err: ErrLedgerUnavailable},
	}})

	assert.ErrorIs(t, err, ErrLedgerWriteFailed)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Contains(t, err.Error(), "requestRegistration: execution reverted")
	assert.True(t, Retryable(err))

	var lwf *LedgerWriteFailedError
	assert.True(t, errors.As(err, &lwf))
	assert.Len(t, lwf.Attempts, 2)
}
