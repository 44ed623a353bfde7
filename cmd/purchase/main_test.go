package main

import (
	"bytes"
	"testing"

	"github.com/cuongbtq/paid-agent/internal/config"
	"github.com/cuongbtq/paid-agent/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *config.Config)
		wantReady bool
		wantErr   string
		wantGuide bool
	}{
		{name: "valid config", mutate: func(c *config.Config) {}, wantReady: true},
		{
			name:      "missing purchaser key shows the guide",
			mutate:    func(c *config.Config) { c.Purchase.APIKey = "" },
			wantGuide: true,
		},
		{
			name:    "other errors are returned",
			mutate:  func(c *config.Config) { c.Purchase.Network = "" },
			wantErr: "network is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Purchase: config.PurchaseConfig{APIKey: "buyer-key"}}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			var buf bytes.Buffer
			endpoints := report.Endpoints{
				AgentURL:   cfg.Purchase.AgentURL,
				PaymentURL: cfg.Purchase.PaymentURL,
				Network:    "Preprod",
			}

			ready, err := checkConfig(cfg, report.New(&buf), endpoints)
			assert.Equal(t, tt.wantReady, ready)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			if tt.wantGuide {
				assert.Contains(t, buf.String(), "PURCHASER_API_KEY=your_purchaser_api_key")
				assert.Contains(t, buf.String(), cfg.Purchase.PaymentURL+"/wallet")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}
