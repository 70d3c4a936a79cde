package cloudfactory

import "context"

// Store persists each provider account's refresh token across restarts —
// spec.md's Load/Dump — behind a pluggable interface the way
// storage.Storage lets dex back the same conceptual state with etcd, SQL
// or Kubernetes CRDs interchangeably. The default is store/json.File; the
// SQL and etcd backends live in cloudfactory/store/sql and
// cloudfactory/store/etcd so a host only pulls in the driver it needs.
type Store interface {
	// Load returns every persisted account as name -> refresh token.
	Load(ctx context.Context) (map[string]string, error)
	// Save overwrites the persisted set of accounts.
	Save(ctx context.Context, accounts map[string]string) error
}
