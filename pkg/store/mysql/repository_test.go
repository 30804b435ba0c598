package mysql

import (
	"testing"

	"trustcompute/pkg/config"
	"trustcompute/pkg/store/mysql/model"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.MySQLConfig
		expected string
	}{
		{
			name:     "explicit port",
			cfg:      config.MySQLConfig{Host: "db", Port: 3307, User: "tcs", Password: "pw", Database: "tcs"},
			expected: "tcs:pw@tcp(db:3307)/tcs?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			name:     "default port",
			cfg:      config.MySQLConfig{Host: "localhost", User: "root", Database: "kv"},
			expected: "root:@tcp(localhost:3306)/kv?charset=utf8mb4&parseTime=True&loc=UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildDSN(tt.cfg))
		})
	}
}

func TestKVEntryTableName(t *testing.T) {
	assert.Equal(t, "kv_entries", model.KVEntry{}.TableName())
}
