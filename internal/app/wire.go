// Package app builds engine components from a loaded configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/sanlk21/smartrice-bidding/internal/api"
	"github.com/sanlk21/smartrice-bidding/internal/archive"
	"github.com/sanlk21/smartrice-bidding/internal/bidding"
	"github.com/sanlk21/smartrice-bidding/internal/channel"
	"github.com/sanlk21/smartrice-bidding/internal/config"
	"github.com/sanlk21/smartrice-bidding/internal/metrics"
	"github.com/sanlk21/smartrice-bidding/internal/poller"
)

// NewAPIClient creates the bid record store client.
func NewAPIClient(cfg *config.Config, logger *slog.Logger) *api.Client {
	return api.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithSubmitTimeout(cfg.Bidding.SubmitTimeout),
	)
}

// NewTransport creates the push transport named by cfg.Channel.Transport.
func NewTransport(cfg *config.Config, logger *slog.Logger) (channel.Transport, error) {
	switch cfg.Channel.Transport {
	case config.TransportWebSocket, "":
		ws := channel.DefaultWebSocketConfig()
		ws.URL = cfg.Channel.WebSocket.URL
		ws.APIKey = cfg.API.APIKey
		if cfg.Channel.WebSocket.PingInterval > 0 {
			ws.PingInterval = cfg.Channel.WebSocket.PingInterval
		}
		if cfg.Channel.WebSocket.PingTimeout > 0 {
			ws.PingTimeout = cfg.Channel.WebSocket.PingTimeout
		}
		if cfg.Channel.WebSocket.WriteTimeout > 0 {
			ws.WriteTimeout = cfg.Channel.WebSocket.WriteTimeout
		}
		if cfg.Channel.DialTimeout > 0 {
			ws.HandshakeTimeout = cfg.Channel.DialTimeout
		}
		return channel.NewWebSocketTransport(ws, logger), nil

	case config.TransportNATS:
		nc := channel.DefaultNATSConfig()
		nc.URL = cfg.Channel.NATS.URL
		nc.Token = cfg.Channel.NATS.Token
		if cfg.Channel.NATS.Prefix != "" {
			nc.Prefix = cfg.Channel.NATS.Prefix
		}
		if cfg.Channel.NATS.BufferSize > 0 {
			nc.BufferSize = cfg.Channel.NATS.BufferSize
		}
		if cfg.Instance.ID != "" {
			nc.Name = cfg.Instance.ID
		}
		if cfg.Channel.DialTimeout > 0 {
			nc.DialTimeout = cfg.Channel.DialTimeout
		}
		return channel.NewNATSTransport(nc, logger), nil
	}
	return nil, fmt.Errorf("unknown channel transport %q", cfg.Channel.Transport)
}

// NewChannel creates the push channel client on the configured transport.
func NewChannel(cfg *config.Config, logger *slog.Logger, reg *metrics.Registry) (*channel.Client, error) {
	transport, err := NewTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	return channel.New(ChannelConfig(cfg), transport,
		channel.WithLogger(logger),
		channel.WithMetrics(reg),
	), nil
}

// ChannelConfig maps the reconnect policy.
func ChannelConfig(cfg *config.Config) channel.Config {
	return channel.Config{
		ReconnectDelay:       cfg.Channel.ReconnectDelay,
		MaxReconnectAttempts: cfg.Channel.MaxReconnectAttempts,
		DialTimeout:          cfg.Channel.DialTimeout,
		QueueSize:            cfg.Channel.QueueSize,
	}
}

// SessionConfig maps bidding settings.
func SessionConfig(cfg *config.Config) bidding.Config {
	return bidding.Config{
		SubmitTimeout: cfg.Bidding.SubmitTimeout,
		TickInterval:  cfg.Bidding.CountdownInterval,
		Poller: poller.Config{
			TickInterval:    cfg.Bidding.TickInterval,
			RefreshInterval: cfg.Bidding.RefreshInterval,
			Concurrency:     cfg.Bidding.Concurrency,
			Timeout:         cfg.Bidding.RefreshTimeout,
		},
	}
}

// ArchiveConfig maps offer archive settings.
func ArchiveConfig(cfg *config.Config) archive.Config {
	return archive.Config{
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		BufferSize:    cfg.Archive.BufferSize,
		Backfill:      cfg.Archive.Backfill,
	}
}
