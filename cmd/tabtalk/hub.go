package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/bus"
	"github.com/progrium/tabtalk-go/config"
	"github.com/progrium/tabtalk-go/relay"
	"github.com/redis/go-redis/v9"
)

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

// openHub connects to the configured relay or Redis server.
func openHub(ctx context.Context, cfg *config.Config, log *slog.Logger) (broadcast.Hub, io.Closer, error) {
	if cfg.Transport.Kind == "redis" {
		client := redis.NewClient(cfg.RedisOptions())
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		return broadcast.NewRedis(client, log), client, nil
	}

	c, err := cfg.Codec()
	if err != nil {
		return nil, nil, err
	}
	client, err := relay.Dial(cfg.Transport.Kind, cfg.Transport.Addr, c, log)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// openTabs returns one context per visibility, all on the same hub: an
// in-process hub when local is set, the configured hub otherwise.
func openTabs(ctx context.Context, local bool, visibility ...bus.Visibility) ([]*bus.Bus, func(), error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	var hub broadcast.Hub
	var closer io.Closer
	if local {
		l := broadcast.NewLocal()
		hub, closer = l, l
	} else {
		hub, closer, err = openHub(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
	}

	var tabs []*bus.Bus
	closeAll := func() {
		for _, b := range tabs {
			b.Close()
		}
		closer.Close()
	}
	for _, vis := range visibility {
		opts, err := cfg.BusOptions(hub, log)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opts.Visibility = vis
		b, err := bus.New(opts)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		tabs = append(tabs, b)
	}
	return tabs, closeAll, nil
}

// openBus loads the config and returns a context attached to the
// configured hub. The returned func closes both.
func openBus(ctx context.Context, visibility bus.Visibility) (*bus.Bus, *slog.Logger, func(), error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	hub, closer, err := openHub(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	opts, err := cfg.BusOptions(hub, log)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	opts.Visibility = visibility
	b, err := bus.New(opts)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	return b, log, func() {
		b.Close()
		closer.Close()
	}, nil
}
