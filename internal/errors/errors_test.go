package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid log level", f.New(errors.ErrInvalidLogLevel).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "Device probe failed: no gpu", f.WithData(errors.ErrProbe, "no gpu").Error())

	wrapped := f.Wrap(errors.ErrReadConfig, fmt.Errorf("boom"))
	assert.Equal(t, "Failed to read config file: boom", wrapped.Error())
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrInvalidLogLevel)
	outer := f.Wrap(errors.ErrInvalidConfig, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrInvalidConfig))
	assert.True(t, errors.HasCode(outer, errors.ErrInvalidLogLevel))
	assert.False(t, errors.HasCode(outer, errors.ErrProbe))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrProbe))
	assert.False(t, errors.HasCode(nil, errors.ErrProbe))
}

func TestUnknownCodeMessage(t *testing.T) {
	assert.Equal(t, "something_else", errors.GetErrorMessage(errors.ErrorCode("something_else")))
}
