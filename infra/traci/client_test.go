package traci

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/platoonsim/core/sim"
)

func TestEncodeCommandLengths(t *testing.T) {
	short := encodeCommand(0xa4, []byte{1, 2, 3})
	assert.Equal(t, []byte{5, 0xa4, 1, 2, 3}, short)

	long := encodeCommand(0xa4, make([]byte, 300))
	require.Len(t, long, 306)
	assert.Equal(t, byte(0), long[0])
	r := newReader(long)
	n, err := r.length()
	require.NoError(t, err)
	assert.Equal(t, 301, n)

	msg := encodeMessage(short, short)
	assert.Equal(t, []byte{0, 0, 0, 14}, msg[:4])
}

func TestReaderValue(t *testing.T) {
	var w writer
	w.ubyte(typeCompound)
	w.int32(4)
	w.typedInt(7)
	w.typedString("a")
	w.ubyte(typeCompound)
	w.int32(1)
	w.typedDouble(1.5)
	w.ubyte(typeColor)
	w.buf.Write([]byte{1, 2, 3, 4})

	v, err := newReader(w.bytes()).value()
	require.NoError(t, err)
	assert.Equal(t, []any{7, "a", []any{1.5}, Color{1, 2, 3, 4}}, v)

	_, err = newReader([]byte{typeString, 0, 0, 0, 9, 'x'}).value()
	assert.ErrorIs(t, err, errShort)
	_, err = newReader([]byte{0x55}).value()
	assert.Error(t, err)
}

func TestClientVehicleGetters(t *testing.T) {
	c, seen := pipeClient(t, func(req request) reply {
		switch req.varID {
		case varIDList:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) { w.typedStringList([]string{"v0", "v1"}) }))
		case varSpeed:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) { w.typedDouble(13.5) }))
		case varPosition:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) {
				w.ubyte(typePosition2D)
				w.double(1)
				w.double(2)
			}))
		case varType:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) { w.typedString("truck") }))
		case varLeader:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) {
				w.ubyte(typeCompound)
				w.int32(2)
				if req.objID == "v1" {
					w.typedString("v0")
					w.typedDouble(4.5)
				} else {
					w.typedString("")
					w.typedDouble(-1)
				}
			}))
		}
		return reply{result: rtypeErr, desc: "unexpected"}
	})

	ids, err := c.VehicleIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"v0", "v1"}, ids)
	req := <-seen
	assert.Equal(t, byte(cmdGetVehicleVariable), req.cmd)

	speed, err := c.VehicleSpeed("v0")
	require.NoError(t, err)
	assert.Equal(t, 13.5, speed)
	assert.Equal(t, "v0", (<-seen).objID)

	pos, err := c.VehiclePosition("v0")
	require.NoError(t, err)
	assert.Equal(t, sim.Position{X: 1, Y: 2}, pos)

	typ, err := c.VehicleTypeID("v0")
	require.NoError(t, err)
	assert.Equal(t, "truck", typ)

	l, err := c.VehicleLeader("v1", 50)
	require.NoError(t, err)
	assert.Equal(t, sim.Leader{ID: "v0", Distance: 4.5}, l)
	<-seen
	<-seen
	req = <-seen
	require.NotNil(t, req.r)
	require.NoError(t, req.r.expect(typeDouble))
	dist, err := req.r.double()
	require.NoError(t, err)
	assert.Equal(t, 50.0, dist)

	l, err = c.VehicleLeader("v0", 50)
	require.NoError(t, err)
	assert.Equal(t, "", l.ID)
	assert.Equal(t, -1.0, l.Distance)

	// wrong type in response
	_, err = c.VehicleRoadID("v0")
	assert.Error(t, err)
}

func TestClientCommandError(t *testing.T) {
	c, _ := pipeClient(t, func(req request) reply {
		return reply{result: rtypeErr, desc: "Vehicle 'x' is not known"}
	})
	_, err := c.VehicleSpeed("x")
	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, byte(cmdGetVehicleVariable), ce.Command)
	assert.Contains(t, ce.Error(), "is not known")

	ni := &CommandError{Command: 0xa4, Result: rtypeNI, Message: "x"}
	assert.Contains(t, ni.Error(), "not implemented")
}

func TestClientStepAndSetters(t *testing.T) {
	c, seen := pipeClient(t, func(req request) reply {
		switch req.cmd {
		case cmdSimStep:
			var w writer
			w.int32(1)
			return ok(w.bytes(), encodeCommand(0xe4, []byte{1, 2, 3}))
		case cmdGetSimVariable:
			if req.varID == varTime {
				return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) { w.typedDouble(12) }))
			}
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) { w.typedInt(3) }))
		}
		return ok()
	})

	require.NoError(t, c.Step(0))
	req := <-seen
	r := newReader(req.content)
	target, err := r.double()
	require.NoError(t, err)
	assert.Equal(t, 0.0, target)

	now, err := c.Time()
	require.NoError(t, err)
	assert.Equal(t, 12.0, now)
	<-seen
	n, err := c.MinExpectedVehicles()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	<-seen

	require.NoError(t, c.SetVehicleType("v0", "truck_platoon_leader"))
	req = <-seen
	assert.Equal(t, byte(cmdSetVehicleVariable), req.cmd)
	assert.Equal(t, byte(varType), req.varID)
	require.NoError(t, req.r.expect(typeString))
	s, err := req.r.str()
	require.NoError(t, err)
	assert.Equal(t, "truck_platoon_leader", s)

	require.NoError(t, c.SetTrafficLightPhase("tl", 2))
	req = <-seen
	assert.Equal(t, byte(cmdSetTLVariable), req.cmd)
	assert.Equal(t, byte(varTLPhaseIndex), req.varID)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.Time()
	assert.Error(t, err)
}

func TestClientTrafficLightDefinitions(t *testing.T) {
	c, _ := pipeClient(t, func(req request) reply {
		switch req.varID {
		case varTLControlledLinks:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) {
				w.ubyte(typeCompound)
				w.int32(5)
				w.typedInt(2)
				w.typedInt(1)
				w.typedStringList([]string{"n_0", "s_0", ":c_0"})
				w.typedInt(1)
				w.typedStringList([]string{"w_0", "e_0", ":c_1"})
			}))
		case varTLCompleteDefinition:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) {
				w.ubyte(typeCompound)
				w.int32(1)
				w.ubyte(typeCompound)
				w.int32(5)
				w.typedString("0")
				w.typedInt(0)
				w.typedInt(1)
				w.ubyte(typeCompound)
				w.int32(2)
				for i, state := range []string{"Gr", "rG"} {
					w.ubyte(typeCompound)
					w.int32(6)
					w.typedDouble(float64(30 + i))
					w.typedString(state)
					w.typedDouble(5)
					w.typedDouble(50)
					w.ubyte(typeCompound)
					w.int32(1)
					w.typedInt((i + 1) % 2)
					w.typedString("")
				}
				w.ubyte(typeCompound)
				w.int32(1)
				w.typedStringList([]string{"k", "v"})
			}))
		case varTLCurrentPhase:
			return ok(getResponse(req.cmd, req.varID, req.objID, func(w *writer) { w.typedInt(1) }))
		}
		return reply{result: rtypeErr, desc: "unexpected"}
	})

	links, err := c.TrafficLightLinks("c")
	require.NoError(t, err)
	assert.Equal(t, [][]sim.Link{
		{{From: "n_0", To: "s_0", Via: ":c_0"}},
		{{From: "w_0", To: "e_0", Via: ":c_1"}},
	}, links)

	logics, err := c.TrafficLightLogics("c")
	require.NoError(t, err)
	require.Len(t, logics, 1)
	assert.Equal(t, "0", logics[0].ProgramID)
	assert.Equal(t, 1, logics[0].CurrentPhase)
	require.Len(t, logics[0].Phases, 2)
	assert.Equal(t, 31.0, logics[0].Phases[1].Duration)
	assert.Equal(t, "rG", logics[0].Phases[1].State)
	assert.Equal(t, []int{0}, logics[0].Phases[1].Next)
	assert.Equal(t, map[string]string{"k": "v"}, logics[0].Params)

	phase, err := c.TrafficLightPhase("c")
	require.NoError(t, err)
	assert.Equal(t, 1, phase)
}
