// Package dualthread provides the runtime for a page and a background worker that live in separate
// execution contexts and only talk through messages. The runtime currently assumes:
//
//  * message ports over an in-process mailbox, NATS https://nats.io, Redis lists https://redis.io or nsq.io https://nsq.io
//  * configuration from the environment with a Hashicorp Consul https://hashicorp.com/consul fallback
//  * secrets from the environment with a Hashicorp Vault https://hashicorp.com/vault fallback
//  * structured logging with apex/log and Prometheus metrics
package dualthread
