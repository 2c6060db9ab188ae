package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/cryguy/jsbridge/internal/core"
)

// Compiled units are engine bytecode behind a fixed header that pins the
// unit to the runtime instance and context generation that produced it.
// QuickJS would happily rebind stale bytecode against a fresh context, so
// the header is what enforces the recompile-after-reset contract.
//
// Layout: 4-byte magic, 1-byte format version, 8-byte runtime id
// (big-endian), 4-byte context generation (big-endian), then the engine's
// serialized form.
const (
	unitMagic   = "QJBC"
	unitVersion = 1
	headerLen   = 4 + 1 + 8 + 4
)

// Encode compiles source against the current context without running it
// and serializes the result. The returned unit is only valid for this
// runtime instance and context generation.
func (e *Engine) Encode(source string) ([]byte, error) {
	if !e.Live() {
		return nil, core.ErrNotReady
	}
	payload, err := e.ctx.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compiling script: %w", err)
	}

	unit := make([]byte, 0, headerLen+len(payload))
	unit = append(unit, unitMagic...)
	unit = append(unit, unitVersion)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], e.runtimeID)
	unit = append(unit, tmp[:]...)
	binary.BigEndian.PutUint32(tmp[:4], e.generation)
	unit = append(unit, tmp[:4]...)
	return append(unit, payload...), nil
}

// DecodeAndRun validates a compiled unit's header, executes its payload,
// and settles the result exactly like Evaluate. Malformed or stale units
// fail as ordinary script errors, never as a crash.
func (e *Engine) DecodeAndRun(unit []byte) RawOutcome {
	if !e.Live() {
		return RawOutcome{Kind: RawError, Text: core.ErrNotReady.Error()}
	}
	payload, err := e.checkUnitHeader(unit)
	if err != nil {
		return RawOutcome{Kind: RawError, Text: err.Error()}
	}
	res := e.ctx.EvalBytecode(payload)
	if res.IsException() {
		defer res.Free()
		return RawOutcome{Kind: RawError, Text: "bytecode rejected by engine: " + exceptionText(res)}
	}
	e.ctx.Globals().Set(completionGlobal, res)
	return e.settleGlobal(completionGlobal)
}

func (e *Engine) checkUnitHeader(unit []byte) ([]byte, error) {
	if len(unit) < headerLen {
		return nil, fmt.Errorf("bytecode unit truncated (%d bytes)", len(unit))
	}
	if string(unit[:4]) != unitMagic {
		return nil, fmt.Errorf("bytecode unit has no valid header")
	}
	if unit[4] != unitVersion {
		return nil, fmt.Errorf("bytecode format version %d is not supported", unit[4])
	}
	if rid := binary.BigEndian.Uint64(unit[5:13]); rid != e.runtimeID {
		return nil, fmt.Errorf("bytecode was produced by a different runtime")
	}
	if gen := binary.BigEndian.Uint32(unit[13:17]); gen != e.generation {
		return nil, fmt.Errorf("bytecode generation %d does not match context generation %d; recompile after reset", gen, e.generation)
	}
	return unit[headerLen:], nil
}
