package txlistener

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
)

func TestNewTxListenerDefaults(t *testing.T) {
	l := NewTxListener((*ethclient.Client)(nil))
	assert.Equal(t, 3*time.Second, l.pollInterval)
	assert.Equal(t, 60*time.Second, l.timeout)
}

func TestNewTxListenerOptions(t *testing.T) {
	l := NewTxListener((*ethclient.Client)(nil), WithPollInterval(time.Second), WithTimeout(5*time.Second))
	assert.Equal(t, time.Second, l.pollInterval)
	assert.Equal(t, 5*time.Second, l.timeout)
}
