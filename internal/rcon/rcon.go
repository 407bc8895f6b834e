// Package rcon implements the Source RCON protocol used by Minecraft
// servers as the remote-command channel for hot-applying configuration.
//
// Dispatch is at-most-once: the sync engine never retries a command,
// because re-issuing a command with side effects (a kick, a broadcast) is
// worse than asking the operator to restart. A dead connection is a
// recoverable failure, never fatal.
package rcon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// Commander dispatches a console command to a running server.
type Commander interface {
	Send(ctx context.Context, serverID, command string) (string, error)
}

var (
	// ErrAuthFailed is returned when the server rejects the password.
	ErrAuthFailed = errors.New("rcon: authentication failed")

	// ErrUnreachable is returned when no connection could be established
	// within the deadline.
	ErrUnreachable = errors.New("rcon: server unreachable")
)

// Packet types defined by the Source RCON protocol.
const (
	typeResponse     int32 = 0
	typeCommand      int32 = 2
	typeAuth         int32 = 3
	authFailedID     int32 = -1
	maxPayloadLength       = 4096
)

// Endpoint is the network identity of one server's RCON listener.
type Endpoint struct {
	Addr     string
	Password string
}

// EndpointResolver maps a server ID to its RCON endpoint, usually backed
// by the server store.
type EndpointResolver func(ctx context.Context, serverID string) (Endpoint, error)

// Client is a Commander speaking Source RCON over TCP. Each Send opens
// a fresh connection, authenticates, issues one command and closes; the
// per-call cost is negligible next to the game server's own command
// handling, and it keeps failure handling stateless.
type Client struct {
	resolve EndpointResolver
	timeout time.Duration
}

// NewClient creates an RCON client. timeout bounds the whole exchange
// (dial, auth, exec); zero selects a 5 second default.
func NewClient(resolve EndpointResolver, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{resolve: resolve, timeout: timeout}
}

// Send issues one command and returns the server's response body.
func (c *Client) Send(ctx context.Context, serverID, command string) (string, error) {
	endpoint, err := c.resolve(ctx, serverID)
	if err != nil {
		return "", fmt.Errorf("rcon: resolve %s: %w", serverID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint.Addr)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreachable, endpoint.Addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", fmt.Errorf("rcon: set deadline: %w", err)
		}
	}

	if err := authenticate(conn, endpoint.Password); err != nil {
		return "", err
	}

	if err := writePacket(conn, 2, typeCommand, command); err != nil {
		return "", fmt.Errorf("rcon: send command: %w", err)
	}
	id, _, body, err := readPacket(conn)
	if err != nil {
		return "", fmt.Errorf("rcon: read response: %w", err)
	}
	if id != 2 {
		return "", fmt.Errorf("rcon: response id %d does not match request", id)
	}
	return body, nil
}

func authenticate(conn net.Conn, password string) error {
	if err := writePacket(conn, 1, typeAuth, password); err != nil {
		return fmt.Errorf("rcon: send auth: %w", err)
	}
	// Some servers send an empty response packet before the auth reply.
	for i := 0; i < 2; i++ {
		id, ptype, _, err := readPacket(conn)
		if err != nil {
			return fmt.Errorf("rcon: read auth response: %w", err)
		}
		if ptype == typeResponse {
			continue
		}
		if id == authFailedID {
			return ErrAuthFailed
		}
		return nil
	}
	return fmt.Errorf("rcon: no auth response")
}

// writePacket frames and sends one packet: little-endian length of the
// remainder, request id, type, then the null-terminated body plus the
// trailing null the protocol requires.
func writePacket(conn net.Conn, id, ptype int32, body string) error {
	if len(body) > maxPayloadLength {
		return fmt.Errorf("payload exceeds %d bytes", maxPayloadLength)
	}
	length := int32(4 + 4 + len(body) + 2)
	buf := make([]byte, 0, 4+length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ptype))
	buf = append(buf, body...)
	buf = append(buf, 0, 0)
	_, err := conn.Write(buf)
	return err
}

func readPacket(conn net.Conn) (id, ptype int32, body string, err error) {
	header := make([]byte, 4)
	if _, err = readFull(conn, header); err != nil {
		return 0, 0, "", err
	}
	length := int32(binary.LittleEndian.Uint32(header))
	if length < 10 || length > maxPayloadLength+10 {
		return 0, 0, "", fmt.Errorf("invalid packet length %d", length)
	}
	payload := make([]byte, length)
	if _, err = readFull(conn, payload); err != nil {
		return 0, 0, "", err
	}
	id = int32(binary.LittleEndian.Uint32(payload[0:4]))
	ptype = int32(binary.LittleEndian.Uint32(payload[4:8]))
	body = string(payload[8 : length-2])
	return id, ptype, body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}
