package network

import (
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
)

// CeltCompatBitstream is the CELT 0.7.0 bitstream version every legacy
// client supports
const CeltCompatBitstream int32 = -2147483637

// codecState is the negotiated codec announced in CodecVersion
type codecState struct {
	alpha       int32
	beta        int32
	preferAlpha bool
	opus        bool
}

func initialCodecState() codecState {
	return codecState{alpha: CeltCompatBitstream, preferAlpha: true, opus: true}
}

func (c codecState) message() *protocol.CodecVersion {
	return &protocol.CodecVersion{
		Alpha:       protocol.Int32(c.alpha),
		Beta:        protocol.Int32(c.beta),
		PreferAlpha: protocol.Bool(c.preferAlpha),
		Opus:        protocol.Bool(c.opus),
	}
}

// negotiate recomputes the codec for users. Opus is enabled when at least
// threshold percent of users support it; otherwise the CELT version most
// users share wins, ties going to the higher version.
func (c codecState) negotiate(users []session.ClientInfo, threshold int) codecState {
	next := c
	if len(users) == 0 {
		return next
	}

	celtUsers := make(map[int32]int)
	opusUsers := 0
	for _, info := range users {
		if info.Opus {
			opusUsers++
		}
		for _, v := range info.CeltVersion {
			celtUsers[v]++
		}
	}
	next.opus = opusUsers*100 >= threshold*len(users)

	var winner int32
	count := 0
	for v, n := range celtUsers {
		if n > count || (n == count && v > winner) {
			winner, count = v, n
		}
	}
	if count == 0 {
		return next
	}

	current := next.beta
	if next.preferAlpha {
		current = next.alpha
	}
	if winner == current {
		return next
	}

	if winner == CeltCompatBitstream {
		next.preferAlpha = true
	} else {
		next.preferAlpha = !next.preferAlpha
	}
	if next.preferAlpha {
		next.alpha = winner
	} else {
		next.beta = winner
	}
	return next
}
