package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundStateAt(t *testing.T) {
	end := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		resolved bool
		now      time.Time
		want     RoundState
	}{
		{"before end", false, end.Add(-time.Second), RoundOpen},
		{"exactly at end", false, end, RoundEnded},
		{"after end", false, end.Add(time.Second), RoundEnded},
		{"resolved wins over open clock", true, end.Add(-time.Hour), RoundResolved},
		{"resolved after end", true, end.Add(time.Hour), RoundResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Round{EndTime: end, Resolved: tt.resolved}
			assert.Equal(t, tt.want, r.StateAt(tt.now))
			assert.Equal(t, tt.want == RoundOpen, r.AcceptsBets(tt.now))
		})
	}
}

func TestIsZeroHandle(t *testing.T) {
	tests := []struct {
		handle string
		want   bool
	}{
		{"", true},
		{"0", true},
		{"0x", true},
		{"0x0", true},
		{ZeroHandle, true},
		{"0x00000000", true},
		{"0x0000000000000000000000000000000000000000000000000000000000000001", false},
		{"0x1000000000000000000000000000000000000000000000000000000000000000", false},
		{"0xdeadbeef", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsZeroHandle(tt.handle), "handle %q", tt.handle)
	}
}

func TestWinnerOf(t *testing.T) {
	assert.Equal(t, WinnerYes, WinnerOf(2, 1))
	assert.Equal(t, WinnerNo, WinnerOf(1, 2))
	assert.Equal(t, WinnerNone, WinnerOf(0, 0))
	assert.Equal(t, WinnerNone, WinnerOf(1000, 1000))
}

func TestSide(t *testing.T) {
	assert.Equal(t, WinnerYes, Side(true))
	assert.Equal(t, WinnerNo, Side(false))
}

func TestWinningSideUnits(t *testing.T) {
	assert.Equal(t, uint64(300), RoundResult{Winner: WinnerYes, YesUnits: 300, NoUnits: 100}.WinningSideUnits())
	assert.Equal(t, uint64(100), RoundResult{Winner: WinnerNo, YesUnits: 300, NoUnits: 100}.WinningSideUnits())
	assert.Zero(t, RoundResult{Winner: WinnerNone, YesUnits: 300, NoUnits: 300}.WinningSideUnits())
}
