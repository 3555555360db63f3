package traci

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/kilianp07/platoonsim/infra/logger"
)

// request is one command received by the fake server.
type request struct {
	cmd     byte
	varID   byte
	objID   string
	content []byte
	r       *reader // positioned after objID for get/set commands
}

// reply is the fake server answer to a request.
type reply struct {
	result byte
	desc   string
	extra  []byte
}

func ok(extra ...[]byte) reply {
	var b []byte
	for _, e := range extra {
		b = append(b, e...)
	}
	return reply{result: rtypeOK, extra: b}
}

// getResponse frames the answer to a variable query.
func getResponse(domain, varID byte, objID string, value func(*writer)) []byte {
	var w writer
	w.ubyte(varID)
	w.str(objID)
	value(&w)
	return encodeCommand(domain+0x10, w.bytes())
}

// serve answers TraCI requests on conn until it is closed or a close
// command arrives. Requests are recorded in the returned channel.
func serve(t *testing.T, conn net.Conn, handle func(req request) reply) <-chan request {
	t.Helper()
	seen := make(chan request, 64)
	go func() {
		defer close(seen)
		defer conn.Close()
		for {
			var head [4]byte
			if _, err := io.ReadFull(conn, head[:]); err != nil {
				return
			}
			body := make([]byte, binary.BigEndian.Uint32(head[:])-4)
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			r := newReader(body)
			n, err := r.length()
			if err != nil {
				return
			}
			cmd, _ := r.next(n)
			req := request{cmd: cmd[0], content: cmd[1:]}
			cr := newReader(req.content)
			if req.cmd >= cmdGetTLVariable {
				req.varID, _ = cr.ubyte()
				req.objID, _ = cr.str()
				req.r = cr
			}
			rep := ok()
			if req.cmd != cmdClose {
				rep = handle(req)
			}
			select {
			case seen <- req:
			default:
			}

			var st writer
			st.ubyte(rep.result)
			st.str(rep.desc)
			msg := encodeMessage(encodeCommand(req.cmd, st.bytes()), rep.extra)
			if _, err := conn.Write(msg); err != nil {
				return
			}
			if req.cmd == cmdClose {
				return
			}
		}
	}()
	return seen
}

// pipeClient returns a client connected to a fake server.
func pipeClient(t *testing.T, handle func(req request) reply) (*Client, <-chan request) {
	t.Helper()
	a, b := net.Pipe()
	seen := serve(t, b, handle)
	c := NewClient(a, logger.NopLogger{})
	t.Cleanup(func() { _ = c.Close() })
	return c, seen
}
