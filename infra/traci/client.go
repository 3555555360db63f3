// Package traci is a TraCI client for SUMO. It covers the subset of the
// protocol the platoon runs need and implements sim.Simulation.
package traci

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/sim"
)

// Client speaks TraCI over one connection. Calls are serialized.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	log    logger.Logger
	closed bool
}

var _ sim.Simulation = (*Client)(nil)

// NewClient wraps an established connection.
func NewClient(conn net.Conn, log logger.Logger) *Client {
	return &Client{conn: conn, log: log}
}

// Dial connects to a TraCI server, retrying until ctx is done.
func Dial(ctx context.Context, addr string, log logger.Logger) (*Client, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return NewClient(conn, log), nil
		}
		log.Debugf("dial %s: %v", addr, err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to %s: %w", addr, errors.Join(ctx.Err(), err))
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (c *Client) exchange(msg []byte) (*reader, error) {
	if c.closed {
		return nil, errors.New("traci: connection closed")
	}
	if _, err := c.conn.Write(msg); err != nil {
		return nil, fmt.Errorf("traci write: %w", err)
	}
	var head [4]byte
	if _, err := io.ReadFull(c.conn, head[:]); err != nil {
		return nil, fmt.Errorf("traci read: %w", err)
	}
	n := int(binary.BigEndian.Uint32(head[:])) - 4
	if n < 0 {
		return nil, fmt.Errorf("traci read: invalid message length %d", n+4)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, fmt.Errorf("traci read: %w", err)
	}
	return newReader(body), nil
}

// status reads the status response of cmd.
func status(r *reader, cmd byte) error {
	if _, err := r.length(); err != nil {
		return err
	}
	id, err := r.ubyte()
	if err != nil {
		return err
	}
	result, err := r.ubyte()
	if err != nil {
		return err
	}
	desc, err := r.str()
	if err != nil {
		return err
	}
	if id != cmd {
		return fmt.Errorf("traci: status for 0x%02x received for command 0x%02x", id, cmd)
	}
	if result != rtypeOK {
		return &CommandError{Command: cmd, Result: result, Message: desc}
	}
	return nil
}

// send issues one command and returns the reader positioned after its
// status response.
func (c *Client) send(cmd byte, content []byte) (*reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.exchange(encodeMessage(encodeCommand(cmd, content)))
	if err != nil {
		return nil, err
	}
	if err := status(r, cmd); err != nil {
		return nil, err
	}
	return r, nil
}

// get queries one variable and returns the reader positioned at the typed
// value of the response.
func (c *Client) get(domain, varID byte, objID string, param func(*writer)) (*reader, error) {
	var w writer
	w.ubyte(varID)
	w.str(objID)
	if param != nil {
		param(&w)
	}
	r, err := c.send(domain, w.bytes())
	if err != nil {
		return nil, err
	}
	if _, err := r.length(); err != nil {
		return nil, err
	}
	resp, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	gotVar, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	gotID, err := r.str()
	if err != nil {
		return nil, err
	}
	if resp != domain+0x10 || gotVar != varID || gotID != objID {
		return nil, fmt.Errorf("traci: unexpected response 0x%02x/0x%02x/%q to 0x%02x/0x%02x/%q",
			resp, gotVar, gotID, domain, varID, objID)
	}
	return r, nil
}

func (c *Client) set(domain, varID byte, objID string, value func(*writer)) error {
	var w writer
	w.ubyte(varID)
	w.str(objID)
	value(&w)
	_, err := c.send(domain, w.bytes())
	return err
}

func (c *Client) getInt(domain, varID byte, objID string) (int, error) {
	r, err := c.get(domain, varID, objID, nil)
	if err != nil {
		return 0, err
	}
	if err := r.expect(typeInteger); err != nil {
		return 0, err
	}
	v, err := r.int32()
	return int(v), err
}

func (c *Client) getDouble(domain, varID byte, objID string) (float64, error) {
	r, err := c.get(domain, varID, objID, nil)
	if err != nil {
		return 0, err
	}
	if err := r.expect(typeDouble); err != nil {
		return 0, err
	}
	return r.double()
}

func (c *Client) getString(domain, varID byte, objID string) (string, error) {
	r, err := c.get(domain, varID, objID, nil)
	if err != nil {
		return "", err
	}
	if err := r.expect(typeString); err != nil {
		return "", err
	}
	return r.str()
}

func (c *Client) getStringList(domain, varID byte, objID string) ([]string, error) {
	r, err := c.get(domain, varID, objID, nil)
	if err != nil {
		return nil, err
	}
	if err := r.expect(typeStringList); err != nil {
		return nil, err
	}
	return r.strList()
}

func (c *Client) getCompound(domain, varID byte, objID string, param func(*writer)) (*items, error) {
	r, err := c.get(domain, varID, objID, param)
	if err != nil {
		return nil, err
	}
	v, err := r.value()
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("traci: expected compound, got %T", v)
	}
	return &items{v: list}, nil
}

// Version returns the API level and the simulator identification.
func (c *Client) Version() (int, string, error) {
	r, err := c.send(cmdGetVersion, nil)
	if err != nil {
		return 0, "", err
	}
	if _, err := r.length(); err != nil {
		return 0, "", err
	}
	if _, err := r.ubyte(); err != nil {
		return 0, "", err
	}
	api, err := r.int32()
	if err != nil {
		return 0, "", err
	}
	ident, err := r.str()
	return int(api), ident, err
}

// Step advances the simulation to targetTime, or by one step when it is 0.
func (c *Client) Step(targetTime float64) error {
	var w writer
	w.double(targetTime)
	r, err := c.send(cmdSimStep, w.bytes())
	if err != nil {
		return err
	}
	n, err := r.int32()
	if err != nil {
		return err
	}
	// subscription results are not used, skip them
	for i := int32(0); i < n; i++ {
		l, err := r.length()
		if err != nil {
			return err
		}
		if _, err := r.next(l); err != nil {
			return err
		}
	}
	return nil
}

// SetOrder sets the client execution order for multi-client setups.
func (c *Client) SetOrder(order int) error {
	var w writer
	w.int32(int32(order))
	_, err := c.send(cmdSetOrder, w.bytes())
	return err
}

// Close ends the session and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	r, err := c.exchange(encodeMessage(encodeCommand(cmdClose, nil)))
	if err == nil {
		err = status(r, cmdClose)
	}
	c.closed = true
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Time returns the current simulation time in seconds.
func (c *Client) Time() (float64, error) {
	return c.getDouble(cmdGetSimVariable, varTime, "")
}

// MinExpectedVehicles returns the number of vehicles still running or
// waiting to depart.
func (c *Client) MinExpectedVehicles() (int, error) {
	return c.getInt(cmdGetSimVariable, varMinExpectedVehicles, "")
}
