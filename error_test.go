package dyplo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHardwareError(t *testing.T) {
	errIO := errors.New("input/output error")
	err := hardwareError("write", errIO)
	assert.EqualError(t, err, "hardware write: input/output error")
	assert.True(t, errors.Is(err, ErrHardwareIO))
	assert.True(t, errors.Is(err, errIO))

	wrapped := fmt.Errorf("node 3: %w", ErrBusy)
	assert.Equal(t, wrapped, hardwareError("open node", wrapped))
	assert.Equal(t, err, hardwareError("again", err))
	assert.Nil(t, hardwareError("noop", nil))
}

func TestExecErrors(t *testing.T) {
	var errs execErrors
	assert.Nil(t, errs.ret())

	errs = errs.add(nil)
	errs = errs.add(ErrBusy)
	errs = errs.add(&HardwareError{Op: "unroute", Err: errors.New("fault")})
	err := errs.ret()
	assert.EqualError(t, err, "busy,hardware unroute: fault")
	assert.True(t, errors.Is(err, ErrBusy))
	assert.True(t, errors.Is(err, ErrHardwareIO))
	assert.False(t, errors.Is(err, ErrNotFound))
}
