package probe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyFailure_Auth(t *testing.T) {
	require.Equal(t, AuthFailed, classifyFailure("Error: authentication_error: invalid x-api-key"))
	require.Equal(t, AuthFailed, classifyFailure("401 Unauthorized"))
}

func TestClassifyFailure_Network(t *testing.T) {
	require.Equal(t, NetworkFailed, classifyFailure("dial tcp: connection refused"))
	require.Equal(t, NetworkFailed, classifyFailure("lookup api.example.com: no such host"))
	require.Equal(t, NetworkFailed, classifyFailure("x509: certificate signed by unknown authority"))
}

func TestClassifyFailure_Unknown(t *testing.T) {
	require.Equal(t, Unknown, classifyFailure("exit status 1"))
}

func TestBoundedWriter_CapsOutput(t *testing.T) {
	var buf bytes.Buffer
	w := boundedWriter{buf: &buf, limit: 4}
	_, _ = w.Write([]byte("hello world"))
	require.LessOrEqual(t, buf.Len(), 4)
}
