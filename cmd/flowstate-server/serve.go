package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/project-flowstate/flowstate/internal/lobby"
	"github.com/project-flowstate/flowstate/internal/logger"
	"github.com/project-flowstate/flowstate/internal/metrics"
	"github.com/project-flowstate/flowstate/internal/network"
	"github.com/project-flowstate/flowstate/internal/protocol"
	"github.com/project-flowstate/flowstate/internal/replay"
	"github.com/project-flowstate/flowstate/internal/server"
)

// serve hosts exactly one match: wait for the roster, start, pump ticks
// until an end condition, write the artifact.
func serve(cfg server.ServerConfig) error {
	match, err := server.NewMatch(cfg)
	if err != nil {
		return err
	}

	control := network.NewTCPTransport(4)
	if err := control.Listen(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen control: %w", err)
	}
	defer control.Close()

	realtime, err := network.ListenRealtime(cfg.RealtimeAddr)
	if err != nil {
		return fmt.Errorf("listen realtime: %w", err)
	}
	defer realtime.Close()

	if cfg.OpsListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.OpsListenAddr, mux); err != nil {
				logger.Warn("ops listener stopped", "error", err)
			}
		}()
	}

	// One room per process: its code gates admission, its match id names
	// the replay artifact.
	rooms := lobby.NewRoomStore(cfg.ConnectTimeout())
	room, err := rooms.Create(cfg.ListenAddr, "flowstate", cfg.MaxPlayers)
	if err != nil {
		return err
	}

	logger.Info("server listening",
		"control", control.Addr().String(), "realtime", realtime.Addr().String(),
		"room_code", room.Code, "match_id", room.MatchID)

	conns, err := acceptRoster(match, control, rooms, room.Code, cfg.ConnectTimeout())
	if err != nil {
		return err
	}

	welcomes, err := match.StartMatch()
	if err != nil {
		return err
	}
	rooms.Delete(room.Code)
	for _, w := range welcomes {
		conn := conns[w.SessionID]
		if err := conn.Send(w.Welcome.Marshal()); err != nil {
			return fmt.Errorf("send welcome: %w", err)
		}
		if err := conn.Send(w.Baseline.Marshal()); err != nil {
			return fmt.Errorf("send baseline: %w", err)
		}
	}

	// All orchestrator mutations funnel through the inbox; the pump
	// goroutine is the only one that touches the match.
	inbox := make(chan server.Event, 256)
	go pumpRealtime(realtime, inbox)
	for sid, conn := range conns {
		go watchControl(sid, conn, inbox)
	}

	art, err := server.Run(context.Background(), match, inbox, realtime.Broadcast)
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.ReplayDir, replay.ArtifactName(room.MatchID))
	if err := replay.WriteArtifact(path, art); err != nil {
		return err
	}
	logger.Info("replay written", "path", path, "end_reason", art.EndReason.String())
	return nil
}

// acceptRoster admits sessions until the roster is full or the connect
// deadline passes. The hello handshake and the room admission both run
// here, before the match starts.
func acceptRoster(match *server.Match, control *network.TCPTransport, rooms *lobby.RoomStore, roomCode string, timeout time.Duration) (map[server.SessionID]network.Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conns := make(map[server.SessionID]network.Connection)
	for !match.IsReadyToStart() {
		conn, err := control.Accept(ctx)
		if err != nil {
			return nil, fmt.Errorf("roster incomplete before connect timeout: %w", err)
		}

		frame, err := conn.Recv()
		if err != nil {
			conn.Close()
			continue
		}
		var hello protocol.ClientHello
		if err := hello.Unmarshal(frame); err != nil {
			logger.Warn("undecodable hello", "remote", conn.RemoteAddr().String())
			conn.Close()
			continue
		}
		if !protocol.Compatible(protocol.ProtocolVersion, hello.ProtocolVersion) {
			logger.Warn("incompatible protocol version",
				"remote", conn.RemoteAddr().String(), "version", hello.ProtocolVersion)
			conn.Close()
			continue
		}

		if _, err := rooms.Join(roomCode); err != nil {
			logger.Warn("room admission refused",
				"remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			continue
		}

		sess, err := match.AcceptSession()
		if err != nil {
			conn.Close()
			continue
		}
		conns[sess.ID] = conn
	}
	return conns, nil
}

// pumpRealtime decodes input datagrams and forwards them to the match.
//
// The first datagram from an unknown address must be an 8-byte big-endian
// session id; it binds that address to the session. Every later datagram
// from the address is an InputCmd for that session.
func pumpRealtime(rt *network.RealtimeChannel, inbox chan<- server.Event) {
	bound := make(map[string]server.SessionID)
	for {
		data, addr, err := rt.Recv()
		if err != nil {
			return
		}

		sid, ok := bound[addr.String()]
		if !ok {
			if len(data) == 8 {
				bound[addr.String()] = server.SessionID(binary.BigEndian.Uint64(data))
			}
			continue
		}

		var cmd protocol.InputCmd
		if err := cmd.Unmarshal(data); err != nil {
			logger.Debug("undecodable input datagram", "remote", addr.String())
			continue
		}
		select {
		case inbox <- func(m *server.Match) { m.ReceiveInput(sid, cmd) }:
		default:
			// Inbox full: the realtime channel is lossy by contract.
		}
	}
}

// watchControl turns a control-channel failure into a disconnect event.
func watchControl(sid server.SessionID, conn network.Connection, inbox chan<- server.Event) {
	for {
		if _, err := conn.Recv(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			inbox <- func(m *server.Match) { m.DisconnectSession(sid) }
			return
		}
	}
}
