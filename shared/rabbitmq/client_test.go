package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_URI(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "defaults",
			cfg:  Config{Host: "localhost", Port: 5672, User: "guest", Password: "guest", VHost: "chickenify"},
		},
		{
			name: "password with reserved characters",
			cfg:  Config{Host: "mq.internal", Port: 5673, User: "chick", Password: "p@ss/w:rd", VHost: "chickenify"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, err := amqp.ParseURI(tt.cfg.URI())
			require.NoError(t, err)

			assert.Equal(t, tt.cfg.Host, uri.Host)
			assert.Equal(t, tt.cfg.Port, uri.Port)
			assert.Equal(t, tt.cfg.User, uri.Username)
			assert.Equal(t, tt.cfg.Password, uri.Password)
			assert.Equal(t, tt.cfg.VHost, uri.Vhost)
		})
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(0, 0, 0))
	assert.Equal(t, 400*time.Millisecond, backoff(0, 0, 2))
	assert.Equal(t, 500*time.Millisecond, backoff(500*time.Millisecond, 3, 0))
	assert.Equal(t, 4500*time.Millisecond, backoff(500*time.Millisecond, 3, 2))
}
