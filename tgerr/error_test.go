package tgerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeoutErrorShape(t *testing.T) {
	err := Timeout("wire.PullResponse")
	require.EqualError(t, err, "wire.PullResponse timed out")

	var te ErrTimeout
	require.True(t, errors.As(err, &te))
	require.Equal(t, "TG-TIMEOUT", te.Code())
	require.Equal(t, "timeout", te.Category())
}

func TestTransportErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transport("dial", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection reset")

	var xe ErrTransport
	require.True(t, errors.As(err, &xe))
	require.Equal(t, "TG-TRANSPORT", xe.Code())
}

func TestServiceErrorCarriesServerCode(t *testing.T) {
	err := Service("SQL-00123", "execute-statement", "unique key violated", "constraint_violation", 7)
	var se ErrService
	require.True(t, errors.As(err, &se))
	require.Equal(t, "SQL-00123", se.Code())
	require.Equal(t, "constraint_violation", se.Category())
	require.Contains(t, err.Error(), "unique key violated")
	require.Contains(t, err.Error(), "execute-statement")
}

func TestServerDiagnosticCodeFormatsIntoErrorCode(t *testing.T) {
	err := ServerDiagnostic(42, "boom")
	var de ErrServerDiagnostic
	require.True(t, errors.As(err, &de))
	require.Equal(t, "TG-DIAG-42", de.Code())
}

func TestIllegalArgumentErrorShape(t *testing.T) {
	err := IllegalArgument("endpoint", nil)
	require.EqualError(t, err, "illegal argument: endpoint")
}

func TestErrorKindsAreDistinguishableByType(t *testing.T) {
	timeoutErr := Timeout("op")
	transportErr := Transport("op", nil)

	var te ErrTimeout
	require.True(t, errors.As(timeoutErr, &te))
	require.False(t, errors.As(transportErr, &te))
}
