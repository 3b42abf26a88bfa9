package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{kind: KindValidation, want: http.StatusBadRequest},
		{kind: KindNotFound, want: http.StatusNotFound},
		{kind: KindPermission, want: http.StatusForbidden},
		{kind: KindSizeLimit, want: http.StatusRequestEntityTooLarge},
		{kind: KindTimeout, want: http.StatusGatewayTimeout},
		{kind: KindInternal, want: http.StatusInternalServerError},
		{kind: Kind("unknown"), want: http.StatusInternalServerError},
	}
	for _, test := range tests {
		t.Run(string(test.kind), func(t *testing.T) {
			require.Equal(t, test.want, test.kind.HTTPStatus())
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("disk on fire")

	require.Equal(t, KindNotFound, KindOf(newError(KindNotFound, "file not found: %s", "x")))
	require.Equal(t, KindTimeout, KindOf(fmt.Errorf("outer: %w", newError(KindTimeout, "slow"))))
	require.Equal(t, KindInternal, KindOf(cause))

	wrapped := wrapError(KindInternal, cause, "error reading file")
	require.EqualError(t, wrapped, "error reading file: disk on fire")
	require.ErrorIs(t, wrapped, cause)
}
