package main

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Config is cloudcored's config file format, parsed from YAML the way
// cmd/dex's Config is.
type Config struct {
	Web       Web                 `json:"web"`
	Accounts  Accounts            `json:"accounts"`
	Providers map[string]Provider `json:"providers"`
	Logger    Logger              `json:"logger"`
}

// Web is the control API's listen configuration.
type Web struct {
	HTTP string `json:"http"`

	// APITokenHash, if set, bcrypt-protects the control API the way
	// EnablePasswordDB/StaticPasswords gate dex's password endpoints —
	// trimmed here to a single shared token rather than a full user
	// database, since cloudcored has no concept of end users, only one
	// operator per daemon.
	APITokenHash string `json:"apiTokenHash"`
}

// CheckAPIToken reports whether token matches the configured hash. It
// always returns true when no hash is configured.
func (w Web) CheckAPIToken(token string) bool {
	if w.APITokenHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(w.APITokenHash), []byte(token)) == nil
}

// HashAPIToken bcrypt-hashes token for storage in config, the same cost
// user/password.go's DefaultPasswordHasher uses.
func HashAPIToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), 10)
	if err != nil {
		return "", fmt.Errorf("hash api token: %v", err)
	}
	return string(hash), nil
}

// Accounts configures where authenticated provider sessions (refresh
// tokens) are persisted between restarts.
type Accounts struct {
	// Driver selects the Store implementation: "json" (default), "sql" or
	// "etcd".
	Driver string       `json:"driver"`
	JSON   JSONAccounts `json:"json"`
	SQL    SQLAccounts  `json:"sql"`
	Etcd   EtcdAccounts `json:"etcd"`
}

type JSONAccounts struct {
	Path string `json:"path"`
}

type SQLAccounts struct {
	Flavor string `json:"flavor"` // postgres, sqlite3, mysql
	Driver string `json:"driver"` // database/sql driver name
	DSN    string `json:"dsn"`
}

type EtcdAccounts struct {
	Endpoints []string `json:"endpoints"`
}

// Provider is one provider's OAuth client credentials, as configured in the
// "providers" map (e.g. providers.box.clientID).
type Provider struct {
	ClientID     string `json:"clientID"`
	ClientSecret string `json:"clientSecret"`
}

// Logger controls the daemon's log level/format, mirroring cmd/dex's
// Logger config block.
type Logger struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Validate performs the fast structural checks cmd/dex's Config.Validate
// runs before anything touches the network.
func (c Config) Validate() error {
	var errs []string
	if c.Web.HTTP == "" {
		errs = append(errs, "web.http must be set")
	}
	switch strings.ToLower(c.Accounts.Driver) {
	case "", "json":
		if c.Accounts.JSON.Path == "" {
			errs = append(errs, "accounts.json.path must be set when accounts.driver is json")
		}
	case "sql":
		if c.Accounts.SQL.DSN == "" {
			errs = append(errs, "accounts.sql.dsn must be set when accounts.driver is sql")
		}
	case "etcd":
		if len(c.Accounts.Etcd.Endpoints) == 0 {
			errs = append(errs, "accounts.etcd.endpoints must be set when accounts.driver is etcd")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown accounts.driver %q", c.Accounts.Driver))
	}
	if len(errs) != 0 {
		return fmt.Errorf("invalid config:\n\t-\t%s", strings.Join(errs, "\n\t-\t"))
	}
	return nil
}
