// Package engine is the deterministic instruction-processing state machine:
// it validates account references, mutates fixed-layout records through the
// record codec, and delegates money movement to the runtime's payment and
// custody primitives. It holds no state of its own and produces identical
// results from identical inputs on every node.
package engine

import "fmt"

// Execute decodes the opcode and payload and routes to the matching handler.
// The request either fully applies or returns exactly one error; the caller
// is responsible for discarding any staged writes on failure.
func Execute(env Env, req Request) error {
	in, err := DecodeInstruction(req.Data)
	if err != nil {
		return err
	}
	switch in.Op {
	case OpConfigure:
		return processConfigure(env, req, in.Configure)
	case OpBuyTickets:
		return processBuy(env, req, in.Buy)
	case OpCloseRound:
		return processClose(env, req)
	case OpClaim:
		return processClaim(env, req, in.Claim)
	case OpClear:
		return processClear(env, req, in.Clear)
	default:
		return fmt.Errorf("%w: unroutable opcode %d", ErrInvalidInstruction, in.Op)
	}
}
