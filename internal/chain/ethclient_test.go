package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/blues/ilr/internal/config"
	"github.com/blues/ilr/internal/errs"
)

func TestSupportedChainTypes(t *testing.T) {
	tests := []struct {
		chainType string
		want      bool
	}{
		{"ethereum", true},
		{"polygon", true},
		{"bsc", true},
		{"arbitrum", false},
		{"optimism", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.chainType, func(t *testing.T) {
			if got := isSupportedChainType(tc.chainType); got != tc.want {
				t.Fatalf("isSupportedChainType(%q) = %v, want %v", tc.chainType, got, tc.want)
			}
		})
	}
}

func TestNewEthClientRejectsRollupChainTypes(t *testing.T) {
	for _, chainType := range []string{"arbitrum", "optimism"} {
		_, err := NewEthClient(context.Background(), config.ChainConfig{
			ChainType: chainType,
			ChainId:   42161,
			RpcUrl:    "http://127.0.0.1:1",
		})
		if !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s: err = %v, want validation error", chainType, err)
		}
	}
}
