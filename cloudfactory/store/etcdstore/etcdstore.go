// Package etcdstore implements cloudfactory.Store on top of etcd, adapted
// from storage/etcd's conn type: one key per provider account under a
// shared prefix, read back with a prefix range the way storage/etcd.go
// lists auth requests or refresh tokens.
package etcdstore

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"

	cloudstorage "github.com/cloudcore/cloudcore"
)

const accountPrefix = "cloudcore/account/"

// Store is a Store backed by an etcd key-value namespace.
type Store struct {
	db *clientv3.Client
}

// New wraps an already-connected etcd client.
func New(db *clientv3.Client) *Store {
	return &Store{db: db}
}

func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	resp, err := s.db.Get(ctx, accountPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "etcdstore: get %s*: %v", accountPrefix, err)
	}
	accounts := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name := string(kv.Key)[len(accountPrefix):]
		accounts[name] = string(kv.Value)
	}
	return accounts, nil
}

// Save overwrites the full account set in one transaction: every existing
// key under the prefix is deleted and the given accounts are put back, the
// same delete-range-then-put shape storage/etcd.go's txnCreate/txnUpdate
// helpers use for a single compare-and-swap write.
func (s *Store) Save(ctx context.Context, accounts map[string]string) error {
	ops := []clientv3.Op{clientv3.OpDelete(accountPrefix, clientv3.WithPrefix())}
	for name, token := range accounts {
		ops = append(ops, clientv3.OpPut(accountPrefix+name, token))
	}
	if _, err := s.db.Txn(ctx).Then(ops...).Commit(); err != nil {
		return cloudstorage.Errorf(cloudstorage.CodeFailure, "etcdstore: commit: %v", err)
	}
	return nil
}
