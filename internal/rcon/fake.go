package rcon

import (
	"context"
	"sync"
)

// FakeCommander is a scripted Commander for tests. Responses are keyed
// by server ID; unkeyed servers answer with Err or an empty response.
type FakeCommander struct {
	mu sync.Mutex

	// Responses maps serverID to the canned response body.
	Responses map[string]string

	// Err, when set, fails every Send.
	Err error

	// Sent records every command dispatched, in order.
	Sent []SentCommand
}

// SentCommand is one recorded dispatch.
type SentCommand struct {
	ServerID string
	Command  string
}

// NewFakeCommander creates an empty fake.
func NewFakeCommander() *FakeCommander {
	return &FakeCommander{Responses: make(map[string]string)}
}

// Send records the command and returns the scripted response.
func (f *FakeCommander) Send(ctx context.Context, serverID, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.Sent = append(f.Sent, SentCommand{ServerID: serverID, Command: command})
	return f.Responses[serverID], nil
}

// Commands returns the commands sent to one server.
func (f *FakeCommander) Commands(serverID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.Sent {
		if s.ServerID == serverID {
			out = append(out, s.Command)
		}
	}
	return out
}
