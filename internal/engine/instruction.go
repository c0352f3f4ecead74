package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/daniel-kung/token-factory/internal/derive"
	"github.com/daniel-kung/token-factory/internal/record"
)

// Instruction wire format: a 1-byte opcode followed by the argument record.
// Strings are u32 length-prefixed, optionals are a 1-byte presence tag, all
// integers little-endian.

type Opcode uint8

const (
	OpConfigure Opcode = iota
	OpBuyTickets
	OpCloseRound
	OpClaim
	OpClear
)

func (op Opcode) String() string {
	switch op {
	case OpConfigure:
		return "Configure"
	case OpBuyTickets:
		return "BuyTickets"
	case OpCloseRound:
		return "CloseRound"
	case OpClaim:
		return "Claim"
	case OpClear:
		return "Clear"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(op))
	}
}

type ConfigureArgs struct {
	Authority   derive.Identity
	ChargeDest  derive.Identity
	Round       string // canonical text form of the round number
	StartTime   uint64
	TotalReward uint64
}

type BuyTicketsArgs struct {
	// Shot is the buyer-chosen combination; nil means "derive one for me".
	Shot *record.Combination
	Num  uint64
}

type ClaimArgs struct {
	Round uint64
}

type ClearArgs struct {
	Amount uint64
}

type Instruction struct {
	Op        Opcode
	Configure *ConfigureArgs
	Buy       *BuyTicketsArgs
	Claim     *ClaimArgs
	Clear     *ClearArgs
}

func (in Instruction) Encode() ([]byte, error) {
	out := []byte{byte(in.Op)}
	switch in.Op {
	case OpConfigure:
		a := in.Configure
		if a == nil {
			return nil, fmt.Errorf("configure args required")
		}
		out = append(out, a.Authority[:]...)
		out = append(out, a.ChargeDest[:]...)
		out = appendString(out, a.Round)
		out = binary.LittleEndian.AppendUint64(out, a.StartTime)
		out = binary.LittleEndian.AppendUint64(out, a.TotalReward)
	case OpBuyTickets:
		a := in.Buy
		if a == nil {
			return nil, fmt.Errorf("buy args required")
		}
		if a.Shot == nil {
			out = append(out, 0)
		} else {
			if err := a.Shot.Validate(); err != nil {
				return nil, err
			}
			out = append(out, 1)
			out = append(out, a.Shot[:]...)
		}
		out = binary.LittleEndian.AppendUint64(out, a.Num)
	case OpCloseRound:
		// No arguments.
	case OpClaim:
		if in.Claim == nil {
			return nil, fmt.Errorf("claim args required")
		}
		out = binary.LittleEndian.AppendUint64(out, in.Claim.Round)
	case OpClear:
		if in.Clear == nil {
			return nil, fmt.Errorf("clear args required")
		}
		out = binary.LittleEndian.AppendUint64(out, in.Clear.Amount)
	default:
		return nil, fmt.Errorf("unknown opcode %d", in.Op)
	}
	return out, nil
}

func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return Instruction{}, fmt.Errorf("%w: empty payload", ErrInvalidInstruction)
	}
	r := &reader{buf: data[1:]}
	in := Instruction{Op: Opcode(data[0])}
	switch in.Op {
	case OpConfigure:
		var a ConfigureArgs
		var err error
		if a.Authority, err = r.identity(); err != nil {
			return Instruction{}, badInstruction(err)
		}
		if a.ChargeDest, err = r.identity(); err != nil {
			return Instruction{}, badInstruction(err)
		}
		if a.Round, err = r.str(); err != nil {
			return Instruction{}, badInstruction(err)
		}
		if a.StartTime, err = r.u64(); err != nil {
			return Instruction{}, badInstruction(err)
		}
		if a.TotalReward, err = r.u64(); err != nil {
			return Instruction{}, badInstruction(err)
		}
		in.Configure = &a
	case OpBuyTickets:
		var a BuyTicketsArgs
		tag, err := r.u8()
		if err != nil {
			return Instruction{}, badInstruction(err)
		}
		switch tag {
		case 0:
		case 1:
			var c record.Combination
			b, err := r.take(6)
			if err != nil {
				return Instruction{}, badInstruction(err)
			}
			copy(c[:], b)
			if err := c.Validate(); err != nil {
				return Instruction{}, badInstruction(err)
			}
			a.Shot = &c
		default:
			return Instruction{}, fmt.Errorf("%w: bad option tag %d", ErrInvalidInstruction, tag)
		}
		if a.Num, err = r.u64(); err != nil {
			return Instruction{}, badInstruction(err)
		}
		in.Buy = &a
	case OpCloseRound:
	case OpClaim:
		round, err := r.u64()
		if err != nil {
			return Instruction{}, badInstruction(err)
		}
		in.Claim = &ClaimArgs{Round: round}
	case OpClear:
		amt, err := r.u64()
		if err != nil {
			return Instruction{}, badInstruction(err)
		}
		in.Clear = &ClearArgs{Amount: amt}
	default:
		return Instruction{}, fmt.Errorf("%w: unknown opcode %d", ErrInvalidInstruction, data[0])
	}
	if len(r.buf) != 0 {
		return Instruction{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidInstruction, len(r.buf))
	}
	return in, nil
}

func badInstruction(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
}

func appendString(out []byte, s string) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(len(s)))
	return append(out, s...)
}

type reader struct {
	buf []byte
}

func (r *reader) take(n int) ([]byte, error) {
	if len(r.buf) < n {
		return nil, fmt.Errorf("short payload: need %d have %d", n, len(r.buf))
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) str() (string, error) {
	b, err := r.take(4)
	if err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(b)
	if n > 32 {
		return "", fmt.Errorf("string too long: %d", n)
	}
	s, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func (r *reader) identity() (derive.Identity, error) {
	b, err := r.take(32)
	if err != nil {
		return derive.Identity{}, err
	}
	return derive.FromBytes(b)
}
