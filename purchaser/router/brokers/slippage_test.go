package brokers_test

import (
	"math/big"
	"testing"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router/brokers"
	"github.com/zeebo/assert"
)

func TestCalculateMinOutput(t *testing.T) {
	cases := []struct {
		expected int64
		bps      uint32
		want     int64
	}{
		{1_000_000, brokers.DefaultSlippageBps, 950_000},
		{1_000_000, 100, 990_000},
		{999, 500, 949},
		{0, 500, 0},
		{1_000, 10_000, 0},
	}
	for _, tc := range cases {
		got := brokers.CalculateMinOutput(big.NewInt(tc.expected), tc.bps)
		assert.Equal(t, got.Int64(), tc.want)
	}
	assert.Equal(t, brokers.CalculateMinOutput(nil, 500).Sign(), 0)
}
