package didcrypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
)

func TestUnpackOuterNormalizesDIDs(t *testing.T) {
	u := New()
	fromHash := account.NormalizeDID("did:key:alice")
	toHash := account.NormalizeDID("did:key:bob")

	raw := []byte(`{"anonymous":false,"from":"did:key:alice","to":["did:key:bob"],"body":{"hello":"world"},"type":"https://didcomm.org/trust-ping/2.0/ping"}`)
	outer, err := u.UnpackOuter(context.Background(), raw)
	require.NoError(t, err)
	require.False(t, outer.Anonymous)
	require.Equal(t, fromHash, outer.FromDIDHash)
	require.Equal(t, []string{toHash}, outer.Recipients)
	require.JSONEq(t, `{"hello":"world"}`, string(outer.Plaintext))
}

func TestUnpackOuterRejectsNonAnonymousWithoutFrom(t *testing.T) {
	u := New()
	_, err := u.UnpackOuter(context.Background(), []byte(`{"anonymous":false,"to":["did:key:bob"]}`))
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestUnpackOuterAllowsAnonymous(t *testing.T) {
	u := New()
	outer, err := u.UnpackOuter(context.Background(), []byte(`{"anonymous":true,"to":["did:key:bob"],"body":{}}`))
	require.NoError(t, err)
	require.True(t, outer.Anonymous)
	require.Empty(t, outer.FromDIDHash)
}

func TestUnpackInnerForwardUnwrapsForwardEnvelope(t *testing.T) {
	u := New()
	outer, err := u.UnpackOuter(context.Background(), []byte(
		`{"anonymous":false,"from":"did:key:alice","to":["did:key:mediator"],"type":"https://didcomm.org/routing/2.0/forward","body":{"to":["did:key:bob"],"body":{"ciphertext":"x"}}}`,
	))
	require.NoError(t, err)

	inner, isForward, err := u.UnpackInnerForward(context.Background(), outer)
	require.NoError(t, err)
	require.True(t, isForward)
	require.Equal(t, []string{"did:key:bob"}, inner.To)
}

func TestUnpackInnerForwardIgnoresNonForwardTypes(t *testing.T) {
	u := New()
	outer, err := u.UnpackOuter(context.Background(), []byte(
		`{"anonymous":false,"from":"did:key:alice","to":["did:key:bob"],"type":"https://didcomm.org/trust-ping/2.0/ping","body":{}}`,
	))
	require.NoError(t, err)

	_, isForward, err := u.UnpackInnerForward(context.Background(), outer)
	require.NoError(t, err)
	require.False(t, isForward)
}

func TestStaticResolverReportsMissingEndpoint(t *testing.T) {
	r := NewStaticResolver(map[string]string{"alice-hash": "https://example.org/inbox"})

	endpoint, err := r.ResolveServiceEndpoint(context.Background(), "alice-hash")
	require.NoError(t, err)
	require.Equal(t, "https://example.org/inbox", endpoint)

	_, err = r.ResolveServiceEndpoint(context.Background(), "bob-hash")
	require.ErrorIs(t, err, ErrNoServiceEndpoint)
}
