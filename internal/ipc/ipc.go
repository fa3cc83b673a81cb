// Package ipc is the control channel between kaia-ctl and a running kaia
// client: one JSON request and one JSON response per unix socket connection.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/kaia.sock"

const (
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdPermission = "permission"
	CmdClearError = "clear-error"
	CmdStatus     = "status"
)

var ErrUnknownCommand = errors.New("unknown command")

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

// Status is a snapshot of the voice client.
type Status struct {
	State      string  `json:"state"`
	Listening  bool    `json:"listening"`
	Permission string  `json:"permission"`
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
	Agent      bool    `json:"agent"`
}

type Response struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// Handler answers one control message.
type Handler func(ControlMessage) (*Status, error)

type Server struct {
	ln   net.Listener
	path string
	wg   sync.WaitGroup
}

// StartServer replaces any stale socket at path and serves handler on it.
func StartServer(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{ln: ln, path: path}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Debug("ipc accept", "err", err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				handleConn(conn, handler)
			}()
		}
	}()

	slog.Info("control socket ready", "path", path)
	return s, nil
}

// Close stops accepting, waits for in-flight requests and removes the socket.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	os.Remove(s.path)
	return err
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&msg); err != nil {
		slog.Debug("ipc decode", "err", err)
		return
	}

	var resp Response
	status, err := handler(msg)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.OK = true
		resp.Status = status
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Debug("ipc encode", "err", err)
	}
}

// SendCommand delivers cmd to the server at path and waits for its answer.
func SendCommand(path, cmd string) (Response, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	enc := json.NewEncoder(conn)
	if err := enc.Encode(ControlMessage{Cmd: cmd}); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
