// Package jsonstore implements cloudfactory.Store as a single JSON file of
// provider name to refresh token, the way spec.md's Load/Dump describes and
// the way examples/promise/main.cpp's CloudFactory persists accounts
// between runs. It is the default Store; cloudfactory/store/sqlstore and
// cloudfactory/store/etcdstore offer richer backends for multi-instance
// deployments.
package jsonstore

import (
	"context"
	"encoding/json"
	"io"
	"os"

	cloudstorage "github.com/cloudcore/cloudcore"
)

// File is a Store backed by a single JSON file on disk.
type File struct {
	Path string
}

func (f File) Load(ctx context.Context) (map[string]string, error) {
	r, err := os.Open(f.Path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "jsonstore: open %s: %v", f.Path, err)
	}
	defer r.Close()
	return decode(r)
}

func (f File) Save(ctx context.Context, accounts map[string]string) error {
	w, err := os.Create(f.Path)
	if err != nil {
		return cloudstorage.Errorf(cloudstorage.CodeFailure, "jsonstore: create %s: %v", f.Path, err)
	}
	defer w.Close()
	return encode(w, accounts)
}

func decode(r io.Reader) (map[string]string, error) {
	var accounts map[string]string
	if err := json.NewDecoder(r).Decode(&accounts); err != nil {
		if err == io.EOF {
			return map[string]string{}, nil
		}
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "jsonstore: decode: %v", err)
	}
	return accounts, nil
}

func encode(w io.Writer, accounts map[string]string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(accounts); err != nil {
		return cloudstorage.Errorf(cloudstorage.CodeFailure, "jsonstore: encode: %v", err)
	}
	return nil
}
