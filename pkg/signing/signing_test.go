package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinkSignerGenerateAndParse(t *testing.T) {
	signer := NewLinkSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("req-1", "jane.doe@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	requestID, email, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "req-1", requestID)
	require.Equal(t, "jane.doe@example.com", email)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestLinkSignerExpired(t *testing.T) {
	signer := NewLinkSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("req-1", "jane.doe@example.com")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}

func TestLinkSignerTamperedSignature(t *testing.T) {
	signer := NewLinkSigner("secret", time.Hour)
	token, _, err := signer.Generate("req-1", "jane.doe@example.com")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)
	parts[3] = strings.Repeat("0", len(parts[3]))
	_, _, _, err = signer.Parse(strings.Join(parts, "."))
	require.Error(t, err)
}

func TestLinkSignerWrongSecret(t *testing.T) {
	signer := NewLinkSigner("secret", time.Hour)
	token, _, err := signer.Generate("req-1", "jane.doe@example.com")
	require.NoError(t, err)

	other := NewLinkSigner("other", time.Hour)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)
}
