package dualthread

import (
	"context"
	"fmt"
	"strings"

	consul "github.com/hashicorp/consul/api"
)

// ConsulPrefix is the KV folder Option reads from when a setting is not found in the environment.
const ConsulPrefix = "dualthread/"

// Consul returns a consul client ready to use. The first access to Consul will dial the Consul server
// and the provided context is used to control things like timeouts.
func (h *Host) Consul(ctx context.Context) (*consul.Client, error) {
	h.mu.Lock()
	client := h.consulClient
	h.mu.Unlock()
	if client != nil {
		return client, nil
	}
	config := consul.DefaultConfig()
	config.Address = strings.TrimPrefix(h.ServiceAddr(ctx, "consul", 8500), "http://")
	client, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.consulClient = client
	h.mu.Unlock()
	return client, nil
}

func (h *Host) consulOption(ctx context.Context, key string) (string, error) {
	client, err := h.Consul(ctx)
	if err != nil {
		return "", fmt.Errorf("consul: %w", err)
	}
	pair, _, err := client.KV().Get(ConsulPrefix+key, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("consul: reading %s: %w", key, err)
	}
	if pair == nil {
		return "", nil
	}
	return string(pair.Value), nil
}
