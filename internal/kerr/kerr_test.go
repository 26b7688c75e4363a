package kerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesOnKindOnly(t *testing.T) {
	err := New(ChainRpc, "node unreachable")
	assert.True(t, errors.Is(err, New(ChainRpc, "different message")))
	assert.False(t, errors.Is(err, New(TxReverted, "node unreachable")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: timeout")
	err := Wrap(ChainRpc, "eth_call failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	err := Wrap(TxReverted, "bark reverted", errors.New("execution reverted"))
	wrapped := fmt.Errorf("dispatch: %w", err)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, TxReverted, kind)
}

func TestWithTxAttachesHashAndReason(t *testing.T) {
	err := New(TxReverted, "take reverted").WithTx("0xabc", "Clipper/not-running-auction")
	assert.Equal(t, "0xabc", err.TxHash)
	assert.Equal(t, "Clipper/not-running-auction", err.RevertReason)
}
