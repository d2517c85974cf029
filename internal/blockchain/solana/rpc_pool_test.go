// ==================================================
// File: internal/blockchain/solana/rpc_pool_test.go
// ==================================================
package solana

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestPool(t *testing.T, nodes int) *Client {
	t.Helper()
	c := &Client{logger: zaptest.NewLogger(t)}
	for i := 0; i < nodes; i++ {
		c.rpcClients = append(c.rpcClients, &RPCClient{
			URL:     fmt.Sprintf("https://node-%d.example.com", i),
			active:  true,
			metrics: &RPCMetrics{},
		})
	}
	return c
}

func TestPoolRoundRobinSkipsInactiveNodes(t *testing.T) {
	c := newTestPool(t, 3)
	c.rpcClients[1].setActive(false)

	for i := 0; i < 6; i++ {
		node := c.getNextClient()
		require.NotNil(t, node)
		assert.NotEqual(t, c.rpcClients[1].URL, node.URL)
	}
}

func TestPoolReactivatesWhenAllNodesFail(t *testing.T) {
	c := newTestPool(t, 2)
	for _, node := range c.rpcClients {
		node.setActive(false)
	}

	node := c.getNextClient()
	require.NotNil(t, node)
	for _, rc := range c.rpcClients {
		assert.True(t, rc.isActive())
	}
}

func TestPoolMetricsSlidingAverage(t *testing.T) {
	node := &RPCClient{metrics: &RPCMetrics{}}
	node.updateMetrics(true, 100*time.Millisecond)
	node.updateMetrics(false, 300*time.Millisecond)

	success, errors, latency := node.getMetrics()
	assert.Equal(t, uint64(1), success)
	assert.Equal(t, uint64(1), errors)
	// Скользящее среднее: (0+100)/2 = 50, затем (50+300)/2 = 175
	assert.Equal(t, 175*time.Millisecond, latency)
}
