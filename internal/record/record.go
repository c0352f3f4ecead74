// Package record holds the fixed-layout binary codecs for the program's
// persistent records. Every record occupies a storage slot of a known exact
// size; decode rejects any byte string whose length does not match before
// touching the contents. All integers are little-endian.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/daniel-kung/token-factory/internal/derive"
)

const (
	// RoundConfigSize is 3 identities + 32 reserved bytes + 12 u64 + closed flag.
	RoundConfigSize = 32*3 + 32 + 8*12 + 1 // 225

	RoundCounterSize = 8

	// UserTicketSize is the 200-byte shot table + 3 u64 + claimed flag + 6 u64.
	UserTicketSize = 200 + 8*3 + 1 + 8*6 // 273

	// shotTableSize bounds the per-user combination map: a u32 entry count
	// followed by at most MaxShotEntries fixed 14-byte entries.
	shotTableSize  = 200
	shotEntrySize  = 6 + 8
	MaxShotEntries = (shotTableSize - 4) / shotEntrySize // 14
)

var (
	ErrInvalidSize = errors.New("invalid record size")
	ErrCorrupt     = errors.New("corrupt record")
)

// Combination is a shot: six decimal digits, most significant first.
type Combination [6]byte

// CombinationFromNumber splits n (taken modulo 1,000,000) into six decimal
// digits, most significant first.
func CombinationFromNumber(n uint64) Combination {
	n %= 1000000
	var c Combination
	for i := 5; i >= 0; i-- {
		c[i] = byte(n % 10)
		n /= 10
	}
	return c
}

func (c Combination) Validate() error {
	for _, d := range c {
		if d > 9 {
			return fmt.Errorf("combination digit out of range: %d", d)
		}
	}
	return nil
}

// Matches counts leading digits equal to target, stopping at the first
// divergence. The result is the match tier (0..6).
func (c Combination) Matches(target Combination) int {
	n := 0
	for i := 0; i < 6; i++ {
		if c[i] != target[i] {
			break
		}
		n++
	}
	return n
}

func (c Combination) String() string {
	b := make([]byte, 6)
	for i, d := range c {
		b[i] = '0' + d
	}
	return string(b)
}

// RoundConfig is the per-round sale record. One live instance per round
// number; slot address derived from the "config" tag plus the round's
// canonical text form.
type RoundConfig struct {
	Authority   derive.Identity
	ChargeDest  derive.Identity
	RewardAsset derive.Identity

	Round       uint64
	TotalReward uint64
	Allocated   uint64
	Target      uint64
	StartTime   uint64
	TotalShots  uint64

	// Match[t-1] is the aggregate shot count at tier t.
	Match [6]uint64

	Closed bool
}

func (c *RoundConfig) Encode() []byte {
	out := make([]byte, RoundConfigSize)
	copy(out[0:32], c.Authority[:])
	copy(out[32:64], c.ChargeDest[:])
	copy(out[64:96], c.RewardAsset[:])
	// out[96:128] reserved.
	off := 128
	for _, v := range []uint64{
		c.Round, c.TotalReward, c.Allocated, c.Target, c.StartTime, c.TotalShots,
		c.Match[0], c.Match[1], c.Match[2], c.Match[3], c.Match[4], c.Match[5],
	} {
		binary.LittleEndian.PutUint64(out[off:], v)
		off += 8
	}
	if c.Closed {
		out[off] = 1
	}
	return out
}

func DecodeRoundConfig(b []byte) (*RoundConfig, error) {
	if len(b) != RoundConfigSize {
		return nil, fmt.Errorf("%w: round config got %d want %d", ErrInvalidSize, len(b), RoundConfigSize)
	}
	var c RoundConfig
	copy(c.Authority[:], b[0:32])
	copy(c.ChargeDest[:], b[32:64])
	copy(c.RewardAsset[:], b[64:96])
	off := 128
	for _, dst := range []*uint64{
		&c.Round, &c.TotalReward, &c.Allocated, &c.Target, &c.StartTime, &c.TotalShots,
		&c.Match[0], &c.Match[1], &c.Match[2], &c.Match[3], &c.Match[4], &c.Match[5],
	} {
		*dst = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}
	switch b[off] {
	case 0:
	case 1:
		c.Closed = true
	default:
		return nil, fmt.Errorf("%w: round config closed flag %d", ErrCorrupt, b[off])
	}
	return &c, nil
}

// RoundCounter is the singleton record holding the active round number.
type RoundCounter struct {
	Round uint64
}

func (r *RoundCounter) Encode() []byte {
	out := make([]byte, RoundCounterSize)
	binary.LittleEndian.PutUint64(out, r.Round)
	return out
}

func DecodeRoundCounter(b []byte) (*RoundCounter, error) {
	if len(b) != RoundCounterSize {
		return nil, fmt.Errorf("%w: round counter got %d want %d", ErrInvalidSize, len(b), RoundCounterSize)
	}
	return &RoundCounter{Round: binary.LittleEndian.Uint64(b)}, nil
}

// UserTicket is the per-(user, round) purchase record, created lazily on the
// first purchase of the round.
type UserTicket struct {
	// Shots maps a combination to the cumulative ticket count purchased for
	// it. At most MaxShotEntries distinct combinations fit the record.
	Shots map[Combination]uint64

	TotalShots uint64
	Round      uint64
	Reward     uint64
	Claimed    bool

	Match [6]uint64
}

func NewUserTicket() *UserTicket {
	return &UserTicket{Shots: map[Combination]uint64{}}
}

// Encode writes the fixed layout. The shot table is sorted by combination so
// encoding is deterministic across nodes.
func (u *UserTicket) Encode() ([]byte, error) {
	if len(u.Shots) > MaxShotEntries {
		return nil, fmt.Errorf("shot table overflow: %d entries, max %d", len(u.Shots), MaxShotEntries)
	}
	keys := make([]Combination, 0, len(u.Shots))
	for k := range u.Shots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		for x := 0; x < 6; x++ {
			if keys[i][x] != keys[j][x] {
				return keys[i][x] < keys[j][x]
			}
		}
		return false
	})

	out := make([]byte, UserTicketSize)
	binary.LittleEndian.PutUint32(out, uint32(len(keys)))
	off := 4
	for _, k := range keys {
		copy(out[off:], k[:])
		binary.LittleEndian.PutUint64(out[off+6:], u.Shots[k])
		off += shotEntrySize
	}

	off = shotTableSize
	for _, v := range []uint64{u.TotalShots, u.Round, u.Reward} {
		binary.LittleEndian.PutUint64(out[off:], v)
		off += 8
	}
	if u.Claimed {
		out[off] = 1
	}
	off++
	for _, v := range u.Match {
		binary.LittleEndian.PutUint64(out[off:], v)
		off += 8
	}
	return out, nil
}

func DecodeUserTicket(b []byte) (*UserTicket, error) {
	if len(b) != UserTicketSize {
		return nil, fmt.Errorf("%w: user ticket got %d want %d", ErrInvalidSize, len(b), UserTicketSize)
	}
	n := binary.LittleEndian.Uint32(b)
	if n > MaxShotEntries {
		return nil, fmt.Errorf("%w: shot table count %d", ErrCorrupt, n)
	}
	u := NewUserTicket()
	off := 4
	for i := uint32(0); i < n; i++ {
		var k Combination
		copy(k[:], b[off:off+6])
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		u.Shots[k] = binary.LittleEndian.Uint64(b[off+6:])
		off += shotEntrySize
	}

	off = shotTableSize
	for _, dst := range []*uint64{&u.TotalShots, &u.Round, &u.Reward} {
		*dst = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}
	switch b[off] {
	case 0:
	case 1:
		u.Claimed = true
	default:
		return nil, fmt.Errorf("%w: user ticket claimed flag %d", ErrCorrupt, b[off])
	}
	off++
	for i := range u.Match {
		u.Match[i] = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}
	return u, nil
}
