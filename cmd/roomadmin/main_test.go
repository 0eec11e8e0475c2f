package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqliteadapter "github.com/ericfisherdev/roomvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/roomvault/internal/adapter/driving/auth"
	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
)

func TestRun_CreateRoom(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "roomvault.db")
	var out bytes.Buffer

	err := run(ctx, []string{"create",
		"-db", dbPath,
		"-name", "general",
		"-creator", "alice",
		"-members", "bob, carol,,",
		"-password", "hunter2",
	}, &out)
	require.NoError(t, err)

	roomID := strings.TrimSpace(out.String())
	require.NotEmpty(t, roomID)

	db, err := sqliteadapter.NewDB(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := sqliteadapter.NewRoomRepo(db)

	for user, wantAdmin := range map[string]bool{"alice": true, "bob": false, "carol": false} {
		member, err := repo.IsRoomMember(ctx, roomID, user)
		require.NoError(t, err)
		assert.True(t, member, user)
		admin, err := repo.IsRoomAdmin(ctx, roomID, user)
		require.NoError(t, err)
		assert.Equal(t, wantAdmin, admin, user)
	}

	secret, err := repo.GetRoomSecret(ctx, roomID)
	require.NoError(t, err)
	assert.Len(t, secret.Salt, 16)

	// Same name for the same creator is rejected.
	err = run(ctx, []string{"create", "-db", dbPath, "-name", "general", "-creator", "alice", "-members", "bob", "-password", "x"}, &out)
	assert.ErrorIs(t, err, driven.ErrRoomAlreadyExists)
}

func TestRun_CreateRoomValidation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "roomvault.db")
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing name", args: []string{"create", "-db", dbPath, "-creator", "alice", "-members", "bob", "-password", "pw"}},
		{name: "missing creator", args: []string{"create", "-db", dbPath, "-name", "general", "-members", "bob", "-password", "pw"}},
		{name: "empty password", args: []string{"create", "-db", dbPath, "-name", "general", "-creator", "alice", "-members", "bob", "-password", ""}},
		{name: "no members", args: []string{"create", "-db", dbPath, "-name", "general", "-creator", "alice", "-password", "pw"}},
		{name: "blank members", args: []string{"create", "-db", dbPath, "-name", "general", "-creator", "alice", "-members", " , ", "-password", "pw"}},
		{name: "only the creator", args: []string{"create", "-db", dbPath, "-name", "general", "-creator", "alice", "-members", "alice", "-password", "pw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ROOMVAULT_ROOM_PASSWORD", "")
			err := run(context.Background(), tt.args, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestRun_Token(t *testing.T) {
	t.Setenv("ROOMVAULT_JWT_SECRET", "test-secret")
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"token", "-user", "alice", "-ttl", "1h"}, &out))

	username, err := auth.NewVerifier("test-secret").Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestRun_TokenRequiresSecret(t *testing.T) {
	t.Setenv("ROOMVAULT_JWT_SECRET", "")
	err := run(context.Background(), []string{"token", "-user", "alice"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_Usage(t *testing.T) {
	assert.ErrorIs(t, run(context.Background(), nil, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"drop"}, &bytes.Buffer{}), errUsage)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"bob", "carol"}, splitList(" bob ,carol,, "))
	assert.Nil(t, splitList(""))
}
