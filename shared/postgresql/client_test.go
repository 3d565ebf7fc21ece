package postgresql

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name: "with password",
			config: Config{
				Host: "db", Port: 5432, User: "chickenify", Password: "s3cret",
				Database: "chickenify", SSLMode: "require",
			},
			want: "host=db port=5432 user=chickenify dbname=chickenify sslmode=require password=s3cret",
		},
		{
			name: "no password defaults sslmode",
			config: Config{
				Host: "localhost", Port: 5433, User: "postgres", Database: "test",
			},
			want: "host=localhost port=5433 user=postgres dbname=test sslmode=disable",
		},
		{
			name: "password with spaces and quotes",
			config: Config{
				Host: "db", Port: 5432, User: "chickenify", Password: `it's a s\cret`,
				Database: "chickenify", SSLMode: "require",
			},
			want: `host=db port=5432 user=chickenify dbname=chickenify sslmode=require password='it\'s a s\\cret'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.config.DSN()
			assert.Equal(t, tt.want, dsn)

			_, err := pq.NewConnector(dsn)
			require.NoError(t, err)
		})
	}
}
