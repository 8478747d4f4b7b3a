// Command relay runs the authoritative UDP relay server: one process per
// deployment, hosting any number of rooms, driven by a fixed-rate tick
// loop. Wiring here follows the teacher's main.go in spirit (flag parsing,
// signal handling, structured logging) generalized from its single-room
// webtransport chat server to the room/member/object relay described in
// SPEC_FULL.md.
package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay/internal/adminhttp"
	"relay/internal/clock"
	"relay/internal/codec"
	"relay/internal/config"
	"relay/internal/manager"
	"relay/internal/model"
	"relay/internal/network"
	"relay/internal/room"

	"golang.org/x/crypto/chacha20poly1305"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Error("config parse failed", "err", err)
		os.Exit(1)
	}

	clk := clock.New()
	clk.SetOffset(cfg.TimeOffset)

	// memberCiphers holds each member's pre-shared AEAD key (spec.md §6's
	// pre-shared-key authentication), looked up by the registrar callback
	// when the manager creates a member and wired into the network
	// server's session table.
	memberCiphers := make(map[model.MemberId]*codec.Cipher)

	var srv *network.Server

	mgr := manager.New(
		func(id model.RoomId) *room.Room { return room.New(id) },
		func(roomId model.RoomId, memberId model.MemberId, groups model.AccessGroups) error {
			cipher, ok := memberCiphers[memberId]
			if !ok {
				var key [chacha20poly1305.KeySize]byte
				if _, err := rand.Read(key[:]); err != nil {
					return err
				}
				c, err := codec.NewCipher(key)
				if err != nil {
					return err
				}
				memberCiphers[memberId] = c
				cipher = c
			}
			srv.RegisterSession(roomId, memberId, cipher)
			return nil
		},
		func(roomId model.RoomId, memberId model.MemberId) {
			if r, ok := mgr.Room(roomId); ok {
				r.Disconnect(memberId, srv.Outbox(roomId))
			}
			srv.RemoveSession(roomId, memberId)
		},
		clk.SetOffset,
	)

	srv, err = network.Listen(cfg.BindAddr, logger, mgr, cfg.DisconnectTimeout)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.BindAddr, "err", err)
		os.Exit(1)
	}
	srv.SetClock(clk)
	defer srv.Close()

	admin := adminhttp.New(mgr)
	go func() {
		if err := admin.Start(cfg.AdminBindAddr); err != nil {
			logger.Warn("admin http server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("relay listening", "bind", cfg.BindAddr, "admin", cfg.AdminBindAddr)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			_ = admin.Shutdown()
			return
		case <-ticker.C:
			mgr.Drain()
			srv.Tick()
			if mgr.Halted() {
				logger.Info("halt requested, shutting down")
				_ = admin.Shutdown()
				return
			}
		}
	}
}
