package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidConfiguration(t *testing.T) {
	cfg := Config{
		Web:      Web{HTTP: "127.0.0.1:5556"},
		Accounts: Accounts{Driver: "json", JSON: JSONAccounts{Path: "accounts.json"}},
	}
	assert.NoError(t, cfg.Validate())
}

func TestInvalidConfigurationMissingWebAddr(t *testing.T) {
	cfg := Config{Accounts: Accounts{Driver: "json", JSON: JSONAccounts{Path: "accounts.json"}}}
	assert.Error(t, cfg.Validate())
}

func TestInvalidConfigurationUnknownAccountsDriver(t *testing.T) {
	cfg := Config{Web: Web{HTTP: "127.0.0.1:5556"}, Accounts: Accounts{Driver: "mongo"}}
	assert.Error(t, cfg.Validate())
}

func TestInvalidConfigurationSQLDriverMissingDSN(t *testing.T) {
	cfg := Config{Web: Web{HTTP: "127.0.0.1:5556"}, Accounts: Accounts{Driver: "sql"}}
	assert.Error(t, cfg.Validate())
}

func TestAPITokenHashRoundTrips(t *testing.T) {
	hash, err := HashAPIToken("s3cr3t")
	assert.NoError(t, err)

	web := Web{APITokenHash: hash}
	assert.True(t, web.CheckAPIToken("s3cr3t"))
	assert.False(t, web.CheckAPIToken("wrong"))
}

func TestCheckAPITokenAllowsAnyTokenWhenUnset(t *testing.T) {
	web := Web{}
	assert.True(t, web.CheckAPIToken("anything"))
}
