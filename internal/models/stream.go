package models

import "strings"

// StreamDelimiter separates the channel tag from the shift tag in a stream name.
const StreamDelimiter = "_"

// StreamKey is the structured form of a stream name such as "mt_tauEsOneProngUp".
type StreamKey struct {
	Channel string
	Shift   string
}

// ParseStreamKey splits a stream name at the first delimiter. A name without a
// delimiter is all channel and has an empty shift.
func ParseStreamKey(name string) StreamKey {
	channel, shift, _ := strings.Cut(name, StreamDelimiter)
	return StreamKey{Channel: channel, Shift: shift}
}

// String reassembles the stream name.
func (k StreamKey) String() string {
	if k.Shift == "" {
		return k.Channel
	}
	return k.Channel + StreamDelimiter + k.Shift
}
