package dualthread

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/apex/log"
	"github.com/go-redis/redis/v8"
	consul "github.com/hashicorp/consul/api"
	vault "github.com/hashicorp/vault/api"
	"github.com/nats-io/nats.go"
)

// Host provides the runtime the page and the worker contexts execute in. Create a Host with NewHost,
// register at least one Worker and then call Host.Start() to begin running.
type Host struct {
	workers   []Worker
	overrides map[string]string
	mu        sync.Mutex
	wg        sync.WaitGroup
	transport Transport
	metrics   *Metrics
	logger    log.Interface

	consulClient *consul.Client
	vaultClient  *vault.Client
	redisClient  *redis.Client
	natsConn     *nats.Conn

	context context.Context
	cancel  context.CancelFunc
}

// NewHost creates a new Host instance ready for use.
func NewHost() *Host {
	return &Host{
		overrides: map[string]string{},
		metrics:   NewMetrics(),
		logger:    log.Log,
	}
}

// Worker allows a context to run "forever" without having to worry about initializing an environment
// or properly responding to system inputs. The worker should watch the context done channel to know when
// to terminate.
type Worker interface {
	// Start the Worker and run until the provided context's done channel is closed. The provided Host
	// reference can be used to access other Host managed services.
	Start(ctx context.Context, h *Host)
}

// The WorkerFunc type is an adapter to allow ordinary functions to act as Workers.
// If f is a function with the appropriate signature, WorkerFunc(f) is a Worker that calls f.
type WorkerFunc func(ctx context.Context, h *Host)

// Start calls f(ctx, h).
func (f WorkerFunc) Start(ctx context.Context, h *Host) {
	f(ctx, h)
}

// Register a worker for running. The Worker's Start() method will be called some time after the Host.Start() method
// is called and should not return unless the provided context is done or a fatal error occurs.
func (h *Host) Register(worker Worker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers = append(h.workers, worker)
}

// Go starts worker right away on its own goroutine. Host.Stop waits for it like any registered worker.
func (h *Host) Go(worker Worker) {
	ctx := h.Context()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		worker.Start(ctx, h)
	}()
}

// Context returns the context associated with the main Host "thread".
func (h *Host) Context() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.context == nil {
		h.context, h.cancel = context.WithCancel(context.Background())
	}
	return h.context
}

// Logger returns the logger shared by everything the Host runs.
func (h *Host) Logger() log.Interface {
	return h.logger
}

// SetLogger replaces the Host logger.
func (h *Host) SetLogger(logger log.Interface) {
	h.logger = logger
}

// Metrics returns the metrics registry owned by the Host.
func (h *Host) Metrics() *Metrics {
	return h.metrics
}

// Set overrides the configuration setting for key. Overrides win over the environment and Consul.
func (h *Host) Set(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.overrides[key] = value
}

func (h *Host) override(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	val, ok := h.overrides[key]
	return val, ok
}

// Option returns the configuration setting associated with a key name. The function searches the
// overrides and the environment first and if not found, tries to obtain the value from Consul.
func (h *Host) Option(ctx context.Context, key string) (string, error) {
	if val, ok := h.override(key); ok {
		return val, nil
	}
	val, ok := os.LookupEnv(key)
	if ok {
		return val, nil
	}
	if _, ok := os.LookupEnv("CONSUL_ADDR"); !ok {
		return "", nil
	}
	return h.consulOption(ctx, key)
}

// OptionDefault is Option with a fallback for missing or unreadable settings.
func (h *Host) OptionDefault(ctx context.Context, key, def string) string {
	val, err := h.Option(ctx, key)
	if err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("option lookup failed")
		return def
	}
	if val == "" {
		return def
	}
	return val
}

// Secret returns a secret associated with a key name. Secret searches the overrides and the environment
// first and if not found, tries to obtain the value from Vault.
func (h *Host) Secret(ctx context.Context, key string) (string, error) {
	if val, ok := h.override(key); ok {
		return val, nil
	}
	val, ok := os.LookupEnv(key)
	if ok {
		return val, nil
	}
	if _, ok := os.LookupEnv("VAULT_ADDR"); !ok {
		return "", nil
	}
	return h.vaultSecret(ctx, key)
}

// ServiceAddr searches for a service address `name` by checking for:
//
// * `NAME_ADDR` - an override or environmental variable
// * `name.service.consul` - a SRV record
// * `localhost:<port>` - a fallback assuming the service is on the default port
func (h *Host) ServiceAddr(ctx context.Context, name string, port int) string {
	addrs := h.ServiceAddrs(ctx, name, port)
	return addrs[0]
}

// ServiceAddrs is like ServiceAddr but returns every address found in the SRV record.
func (h *Host) ServiceAddrs(ctx context.Context, name string, port int) []string {
	key := fmt.Sprintf("%s_ADDR", strings.ToUpper(name))
	if addr, ok := h.override(key); ok {
		return strings.Split(addr, ",")
	}
	if addr, ok := os.LookupEnv(key); ok {
		return strings.Split(addr, ",")
	}
	// Try Consul using DNS
	resolver := net.Resolver{}
	_, addresses, err := resolver.LookupSRV(ctx, "", "", fmt.Sprintf("%s.service.consul", name))
	if err != nil || len(addresses) == 0 {
		// Try service on default port
		return []string{fmt.Sprintf("localhost:%d", port)}
	}
	out := make([]string, len(addresses))
	for i, a := range addresses {
		out[i] = strings.TrimSuffix(a.Target, ".") + ":" + strconv.Itoa(int(a.Port))
	}
	return out
}

// Start the Host running as long as one or more Worker are registered.
// Start does not return until SIGINT/SIGTERM is received or Stop is called, and every worker has returned.
func (h *Host) Start() {
	ctx := h.Context()
	h.mu.Lock()
	workers := append([]Worker(nil), h.workers...)
	h.mu.Unlock()
	for _, worker := range workers {
		h.Go(worker)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	select {
	case sig := <-signals:
		h.logger.WithField("signal", sig.String()).Info("shutting down")
		h.cancel()
	case <-ctx.Done():
	}

	h.wg.Wait()
	h.close()
}

// Stop cancels the Host context, which asks every worker to return.
func (h *Host) Stop() {
	h.Context()
	h.cancel()
}

// Wait blocks until every started worker has returned.
func (h *Host) Wait() {
	h.wg.Wait()
}

func (h *Host) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.natsConn != nil {
		h.natsConn.Close()
		h.natsConn = nil
	}
	if h.redisClient != nil {
		if err := h.redisClient.Close(); err != nil {
			h.logger.WithError(err).Warn("closing redis client")
		}
		h.redisClient = nil
	}
}
