// Command roomadmin seeds rooms and mints development tokens for roomvault.
//
//	roomadmin create -name general -creator alice -members bob,carol -password s3cret
//	roomadmin token -user alice -ttl 24h
//
// The database path comes from ROOMVAULT_DB_PATH (or -db) and the signing
// secret from ROOMVAULT_JWT_SECRET.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	sqliteadapter "github.com/ericfisherdev/roomvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/roomvault/internal/adapter/driving/auth"
	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/roomcrypto"
)

var errUsage = errors.New("usage: roomadmin <create|token> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "create":
		return createRoom(ctx, args[1:], out)
	case "token":
		return mintToken(args[1:], out)
	default:
		return errUsage
	}
}

func createRoom(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	dbPath := fs.String("db", envOr("ROOMVAULT_DB_PATH", "roomvault.db"), "SQLite database path")
	name := fs.String("name", "", "room name, unique per creator")
	creator := fs.String("creator", "", "username of the creating admin")
	members := fs.String("members", "", "comma-separated usernames to add as members")
	password := fs.String("password", os.Getenv("ROOMVAULT_ROOM_PASSWORD"), "room password (or ROOMVAULT_ROOM_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *creator == "" {
		return errors.New("create: -name and -creator are required")
	}
	var memberList []string
	for _, m := range splitList(*members) {
		if m != *creator {
			memberList = append(memberList, m)
		}
	}
	if len(memberList) == 0 {
		return errors.New("create: -members must name at least one user besides the creator")
	}

	secret, err := roomcrypto.NewSecret(*password)
	if err != nil {
		return fmt.Errorf("create: room password: %w", err)
	}

	// 1. Open database and bring the schema up to date.
	db, err := sqliteadapter.NewDB(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}

	// 2. Create the room with its creator as admin.
	room := model.Room{
		ID:        uuid.NewString(),
		Name:      *name,
		CreatedBy: *creator,
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := sqliteadapter.NewRoomRepo(db).CreateRoom(ctx, room, memberList); err != nil {
		return fmt.Errorf("create room %q: %w", *name, err)
	}

	slog.Info("room created", "room_id", room.ID, "name", room.Name, "created_by", room.CreatedBy)
	_, err = fmt.Fprintln(out, room.ID)
	return err
}

func mintToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("user", "", "username placed in the sub claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("token: -user is required")
	}
	secret := os.Getenv("ROOMVAULT_JWT_SECRET")
	if secret == "" {
		return errors.New("token: ROOMVAULT_JWT_SECRET is required")
	}

	token, err := auth.NewVerifier(secret).Issue(*user, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
