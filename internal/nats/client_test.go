package nats

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

func TestConfigOptions(t *testing.T) {
	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("not a certificate"), 0o600))

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"plain", Config{URL: "nats://localhost:4222"}, ""},
		{"token", Config{URL: "nats://localhost:4222", Token: "s3cret"}, ""},
		{"ca only", Config{CAFile: ca}, errPartialTLS.Error()},
		{"cert and key only", Config{CertFile: "c.pem", KeyFile: "k.pem"}, errPartialTLS.Error()},
		{"missing ca file", Config{CAFile: filepath.Join(dir, "absent.pem"), CertFile: "c.pem", KeyFile: "k.pem"}, "failed to read CA file"},
		{"unparseable ca", Config{CAFile: ca, CertFile: "c.pem", KeyFile: "k.pem"}, "failed to parse CA certificate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := tt.cfg.options(logger.NewNop())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.NotContains(t, err.Error(), "s3cret")
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, opts)
		})
	}
}

func TestConnectRejectsPartialTLSBeforeDialing(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "nats://127.0.0.1:1", KeyFile: "k.pem"}, logger.NewNop())
	assert.ErrorIs(t, err, errPartialTLS)
}

func TestConnectHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, Config{URL: "nats://127.0.0.1:1"}, logger.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilConnectionIsNotConnected(t *testing.T) {
	c := &Client{log: logger.NewNop()}
	assert.False(t, c.IsConnected())
	c.Close()
}
