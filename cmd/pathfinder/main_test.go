package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/config"
	"github.com/autom8ter/pathfinder/server"
	"github.com/autom8ter/pathfinder/storage/memory"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	key := strings.TrimPrefix(lines[1], "key: ")
	signer, err := auth.LoadSigner(key)
	require.NoError(t, err)
	require.Equal(t, "identity: "+signer.Identity().String(), lines[0])
}

func TestRouteCommands(t *testing.T) {
	admin, err := auth.GenerateSigner()
	require.NoError(t, err)
	st := memory.New()
	defer st.Close()
	pf, err := pathfinder.New(context.Background(), st, admin.Identity())
	require.NoError(t, err)
	srv := server.NewGRPCServer(server.NewService(pf))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(lis)
	defer srv.Stop()
	target := lis.Addr().String()

	for _, args := range [][]string{
		{"420420417", "1000", "50000000"},
		{"1000", "2000", "50000000"},
		{"420420417", "2000", "900000000"},
	} {
		out, err := execute(t, append([]string{"route", "add", "--target", target, "--key", admin.HexKey()}, args...)...)
		require.NoError(t, err)
		require.Contains(t, out, "added")
		// each invocation is a new client; keep their millisecond timestamps distinct
		time.Sleep(2 * time.Millisecond)
	}

	out, err := execute(t, "route", "find", "--target", target, "420420417", "2000")
	require.NoError(t, err)
	require.Equal(t, "Hub -> AssetHub -> Acala\n", out)

	out, err = execute(t, "route", "quote", "--target", target, "420420417", "2000")
	require.NoError(t, err)
	require.Contains(t, out, "total cost: 100000000")

	out, err = execute(t, "route", "cost", "--target", target, "2000", "1000")
	require.NoError(t, err)
	require.Equal(t, "0 (no edge)\n", out)

	_, err = execute(t, "route", "add", "--target", target, "--key", "", "1", "2", "3")
	require.ErrorIs(t, err, server.ErrNoSigner)

	_, err = execute(t, "route", "find", "--target", target, "x", "2")
	require.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	st, err := openStore(ctx, config.Storage{Backend: "memory"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = openStore(ctx, config.Storage{Backend: "badger", Path: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = openStore(ctx, config.Storage{Backend: "etcd"}, zap.NewNop())
	require.Error(t, err)
}
