package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeForStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{0, ErrorTypeNetwork},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{409, ErrorTypeClient},
		{422, ErrorTypeClient},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServerError},
		{503, ErrorTypeServerError},
		{302, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForStatus(tt.code))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(502))
	assert.False(t, IsRetryableStatusCode(400))
	assert.False(t, IsRetryableStatusCode(401))
	assert.False(t, IsRetryableStatusCode(404))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "auth error (code 401): JWT expired", FromStatus(401, "JWT expired").Error())
	assert.Equal(t, "network error: dial tcp: refused", Network(stderrors.New("dial tcp: refused")).Error())
	assert.Equal(t, "not_found error (code 200): no row with id 7",
		New(ErrorTypeNotFound, 200, "no row with id %s", "7").Error())
}

func TestUnwrapAndClassify(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("update row 3: %w", Network(cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorTypeNetwork, TypeOf(err))
	assert.True(t, IsRetryableError(err))

	err = fmt.Errorf("update row 4: %w", FromStatus(403, "permission denied"))
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
	assert.False(t, IsRetryableError(err))

	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
	assert.False(t, IsRetryableError(stderrors.New("plain")))
}
