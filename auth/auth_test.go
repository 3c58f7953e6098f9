package auth_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
)

func TestParseIdentity(t *testing.T) {
	id, err := auth.ParseIdentity("0x7013dc4df91c1a8f0d33d6d6f44310e1565fbb5c")
	require.NoError(t, err)
	require.True(t, strings.EqualFold("0x7013dc4df91c1a8f0d33d6d6f44310e1565fbb5c", id.String()))
	require.False(t, id.IsZero())

	_, err = auth.ParseIdentity("not-an-address")
	require.True(t, errors.Is(err, auth.ErrInvalidIdentity))

	again, err := auth.IdentityFromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, again)

	bits, err := json.Marshal(id)
	require.NoError(t, err)
	var decoded auth.Identity
	require.NoError(t, json.Unmarshal(bits, &decoded))
	require.Equal(t, id, decoded)
}

func TestGate(t *testing.T) {
	admin, err := auth.GenerateSigner()
	require.NoError(t, err)
	other, err := auth.GenerateSigner()
	require.NoError(t, err)

	g := auth.NewGate(admin.Identity())
	require.True(t, g.Authorize(admin.Identity()))
	require.False(t, g.Authorize(other.Identity()))
	require.False(t, g.Authorize(auth.Identity{}))
	require.NoError(t, g.Check(admin.Identity()))
	require.True(t, errors.Is(g.Check(other.Identity()), auth.ErrUnauthorized))
	require.Equal(t, admin.Identity(), g.Admin())
}

func TestSignAndVerify(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer, err := auth.GenerateSigner()
	require.NoError(t, err)
	intent := auth.RouteIntent{From: 1, To: 2, Cost: graph.NewCost(100), Timestamp: now.UnixMilli()}
	sig, err := signer.Sign(intent)
	require.NoError(t, err)

	v := auth.NewVerifier(auth.WithClock(func() time.Time { return now.Add(time.Minute) }))
	id, err := v.Verify(intent, signer.Identity(), sig)
	require.NoError(t, err)
	require.Equal(t, signer.Identity(), id)

	// legacy 27/28 recovery ids are accepted
	legacy := append([]byte(nil), sig...)
	legacy[64] += 27
	_, err = v.Verify(intent, signer.Identity(), legacy)
	require.NoError(t, err)

	tampered := intent
	tampered.Cost = graph.NewCost(1)
	_, err = v.Verify(tampered, signer.Identity(), sig)
	require.True(t, errors.Is(err, auth.ErrCallerMismatch))

	_, err = v.Verify(intent, signer.Identity(), sig[:10])
	require.True(t, errors.Is(err, auth.ErrBadSignature))

	late := auth.NewVerifier(auth.WithClock(func() time.Time { return now.Add(time.Hour) }))
	_, err = late.Verify(intent, signer.Identity(), sig)
	require.True(t, errors.Is(err, auth.ErrStaleRequest))

	lenient := auth.NewVerifier(auth.WithMaxSkew(0), auth.WithClock(func() time.Time { return now.Add(time.Hour) }))
	_, err = lenient.Verify(intent, signer.Identity(), sig)
	require.NoError(t, err)
}

func TestLoadSigner(t *testing.T) {
	signer, err := auth.GenerateSigner()
	require.NoError(t, err)
	loaded, err := auth.LoadSigner("0x" + signer.HexKey())
	require.NoError(t, err)
	require.Equal(t, signer.Identity(), loaded.Identity())

	_, err = auth.LoadSigner("zz")
	require.Error(t, err)
}
