package etcdstore

import (
	"context"
	"os"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSaveThenLoadRoundTrips needs a running etcd, gated the same way
// storage/etcd's tests require a live cluster rather than faking clientv3.
func TestSaveThenLoadRoundTrips(t *testing.T) {
	endpoint := os.Getenv("CLOUDCORE_ETCD_ENDPOINT")
	if endpoint == "" {
		t.Skip("CLOUDCORE_ETCD_ENDPOINT not set, skipping")
	}
	client, err := clientv3.New(clientv3.Config{Endpoints: []string{endpoint}, DialTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	s := New(client)
	require.NoError(t, s.Save(context.Background(), map[string]string{"box": "rt1"}))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"box": "rt1"}, got)
}
