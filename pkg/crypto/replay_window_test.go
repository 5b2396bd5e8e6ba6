package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayWindowSizeRounding(t *testing.T) {
	assert.Equal(t, uint64(2048), NewReplayWindow(0).Size())
	assert.Equal(t, uint64(128), NewReplayWindow(100).Size())
	assert.Equal(t, uint64(64), NewReplayWindow(64).Size())
}

func TestReplayWindowSequenceZeroSeen(t *testing.T) {
	w := NewReplayWindow(DefaultReplayWindow)
	assert.ErrorIs(t, w.Check(0), ErrReplayed)
	assert.NoError(t, w.Check(1))
}

func TestReplayWindowAcceptOnce(t *testing.T) {
	w := NewReplayWindow(DefaultReplayWindow)

	for _, seq := range []uint64{1, 2, 5, 3} {
		require.NoError(t, w.Check(seq), "seq %d", seq)
		w.Accept(seq)
	}
	assert.Equal(t, uint64(5), w.Last())

	for _, seq := range []uint64{1, 2, 3, 5} {
		assert.ErrorIs(t, w.Check(seq), ErrReplayed, "seq %d", seq)
	}
	assert.NoError(t, w.Check(4))
}

func TestReplayWindowCheckDoesNotCommit(t *testing.T) {
	w := NewReplayWindow(DefaultReplayWindow)
	require.NoError(t, w.Check(10))
	require.NoError(t, w.Check(10))
	assert.Equal(t, uint64(0), w.Last())
}

func TestReplayWindowTooOld(t *testing.T) {
	w := NewReplayWindow(DefaultReplayWindow)
	w.Accept(3000)

	assert.ErrorIs(t, w.Check(3000-DefaultReplayWindow), ErrReplayed)
	assert.ErrorIs(t, w.Check(100), ErrReplayed)
	assert.NoError(t, w.Check(3000-DefaultReplayWindow+1))
}

func TestReplayWindowJumpClearsHistory(t *testing.T) {
	w := NewReplayWindow(DefaultReplayWindow)
	for seq := uint64(1); seq <= 200; seq++ {
		w.Accept(seq)
	}

	w.Accept(5000)
	for _, seq := range []uint64{3000, 3072, 4000, 4999} {
		assert.NoError(t, w.Check(seq), "seq %d", seq)
	}
	assert.ErrorIs(t, w.Check(5000), ErrReplayed)
}

func TestReplayWindowSlidesAcrossWords(t *testing.T) {
	w := NewReplayWindow(128)
	for seq := uint64(1); seq <= 1000; seq++ {
		require.NoError(t, w.Check(seq), "seq %d", seq)
		w.Accept(seq)
	}
	for seq := uint64(1000 - 127); seq <= 1000; seq++ {
		assert.ErrorIs(t, w.Check(seq), ErrReplayed, "seq %d", seq)
	}
}

func TestReplayWindowReset(t *testing.T) {
	w := NewReplayWindow(DefaultReplayWindow)
	w.Accept(7)
	w.Reset()
	assert.Equal(t, uint64(0), w.Last())
	assert.NoError(t, w.Check(7))
	assert.ErrorIs(t, w.Check(0), ErrReplayed)
}
