// Package room maps participants to channel identifiers.
//
// Pairwise channels are named "dm:<low>:<high>" with the two user ids sorted,
// so both participants resolve the same channel. The global channel uses a
// name without the "dm:" prefix and can never collide with a pairwise one.
package room

import (
	"fmt"
	"strconv"
	"strings"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
)

type ChannelID string

const (
	globalID ChannelID = "global"
	dmPrefix           = "dm:"
)

// Global returns the single broadcast channel.
func Global() ChannelID {
	return globalID
}

// ForPair returns the canonical channel for the unordered pair {a, b}.
func ForPair(a, b int64) ChannelID {
	if a > b {
		a, b = b, a
	}
	return ChannelID(fmt.Sprintf("%s%d:%d", dmPrefix, a, b))
}

func (c ChannelID) IsGlobal() bool {
	return c == globalID
}

func (c ChannelID) String() string {
	return string(c)
}

// Descriptor names a channel by its participants. The zero value is the
// global channel.
type Descriptor struct {
	pair bool
	low  int64
	high int64
}

func GlobalDescriptor() Descriptor {
	return Descriptor{}
}

func PairDescriptor(a, b int64) Descriptor {
	if a > b {
		a, b = b, a
	}
	return Descriptor{pair: true, low: a, high: b}
}

// DescriptorFor builds the descriptor a user means when naming other, where a
// nil other means the global channel.
func DescriptorFor(self int64, other *int64) Descriptor {
	if other == nil {
		return GlobalDescriptor()
	}
	return PairDescriptor(self, *other)
}

func (d Descriptor) IsGlobal() bool {
	return !d.pair
}

// Participants returns the sorted pair. Both values are zero for the global
// channel.
func (d Descriptor) Participants() (int64, int64) {
	return d.low, d.high
}

// Includes reports whether userID may see the channel.
func (d Descriptor) Includes(userID int64) bool {
	return !d.pair || d.low == userID || d.high == userID
}

func (d Descriptor) Channel() ChannelID {
	if !d.pair {
		return Global()
	}
	return ForPair(d.low, d.high)
}

// Parse is the inverse of Descriptor.Channel.
func Parse(c ChannelID) (Descriptor, error) {
	if c.IsGlobal() {
		return GlobalDescriptor(), nil
	}
	rest, ok := strings.CutPrefix(string(c), dmPrefix)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: unknown channel %q", chaterrors.ErrInvalidInput, c)
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 2 {
		return Descriptor{}, fmt.Errorf("%w: malformed dm channel %q", chaterrors.ErrInvalidInput, c)
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: malformed dm channel %q", chaterrors.ErrInvalidInput, c)
	}
	b, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: malformed dm channel %q", chaterrors.ErrInvalidInput, c)
	}
	return PairDescriptor(a, b), nil
}
