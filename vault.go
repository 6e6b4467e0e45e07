package dualthread

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultPath is the KV v2 secret Secret reads from when a key is not found in the environment.
const VaultPath = "secret/data/dualthread"

// Vault returns a vault client ready to use. The first access to Vault will dial the Vault server
// and the provided context is used to control things like timeouts. The token is taken from VAULT_TOKEN.
func (h *Host) Vault(ctx context.Context) (*vault.Client, error) {
	h.mu.Lock()
	client := h.vaultClient
	h.mu.Unlock()
	if client != nil {
		return client, nil
	}
	config := vault.DefaultConfig()
	addr := h.ServiceAddr(ctx, "vault", 8200)
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	config.Address = addr
	client, err := vault.NewClient(config)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.vaultClient = client
	h.mu.Unlock()
	return client, nil
}

func (h *Host) vaultSecret(ctx context.Context, key string) (string, error) {
	client, err := h.Vault(ctx)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	secret, err := client.Logical().ReadWithContext(ctx, VaultPath)
	if err != nil {
		return "", fmt.Errorf("vault: reading %s: %w", key, err)
	}
	if secret == nil {
		return "", nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	val, _ := data[key].(string)
	return val, nil
}
