package gameserver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/craftops/agent/pkg/logger"
	"github.com/gorcon/rcon"
)

// RconRuntime drives the live server over its RCON port. The single
// connection is guarded by a mutex, which also gives the engine one
// ordered command channel: commands issued through it never interleave.
type RconRuntime struct {
	address  string
	password string

	mu   sync.Mutex
	conn *rcon.Conn
}

// NewRconRuntime creates an RCON-backed runtime. The connection is
// established lazily on first use and re-established after errors.
func NewRconRuntime(address, password string) *RconRuntime {
	return &RconRuntime{
		address:  address,
		password: password,
	}
}

// execute runs one command over RCON, reconnecting once on failure
func (r *RconRuntime) execute(command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		if err := r.connectLocked(); err != nil {
			return "", err
		}
	}

	response, err := r.conn.Execute(command)
	if err == nil {
		return response, nil
	}

	// Stale connection: reconnect and retry once
	r.conn.Close()
	r.conn = nil
	if err := r.connectLocked(); err != nil {
		return "", err
	}
	return r.conn.Execute(command)
}

func (r *RconRuntime) connectLocked() error {
	conn, err := rcon.Dial(r.address, r.password,
		rcon.SetDialTimeout(5*time.Second),
		rcon.SetDeadline(5*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to RCON at %s: %w", r.address, err)
	}
	r.conn = conn
	return nil
}

// Broadcast sends a text message to all connected players
func (r *RconRuntime) Broadcast(message string) error {
	_, err := r.execute("say " + message)
	return err
}

// KickAll disconnects every connected player with an explanatory message
func (r *RconRuntime) KickAll(message string) error {
	players, err := r.OnlinePlayers()
	if err != nil {
		return err
	}

	for _, player := range players {
		if _, err := r.execute(fmt.Sprintf("kick %s %s", player, message)); err != nil {
			logger.Warn("Failed to kick player", map[string]interface{}{
				"player": player,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

// OnlinePlayers returns the names of currently connected players by
// parsing the response of the "list" command:
// "There are N of a max of M players online: alice, bob"
func (r *RconRuntime) OnlinePlayers() ([]string, error) {
	response, err := r.execute("list")
	if err != nil {
		return nil, err
	}
	return parsePlayerList(response), nil
}

func parsePlayerList(response string) []string {
	idx := strings.LastIndex(response, ":")
	if idx < 0 || idx == len(response)-1 {
		return nil
	}

	var players []string
	for _, name := range strings.Split(response[idx+1:], ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			players = append(players, name)
		}
	}
	return players
}

// DispatchCommand runs a console-equivalent command
func (r *RconRuntime) DispatchCommand(command string) error {
	_, err := r.execute(command)
	return err
}

// VersionString returns the server's self-reported version string
func (r *RconRuntime) VersionString() (string, error) {
	return r.execute("version")
}

// Close tears down the RCON connection
func (r *RconRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
