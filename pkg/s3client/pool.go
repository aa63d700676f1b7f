// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package s3client provides a connection pool for S3-compatible clients.
// Object stores sharing an endpoint and credentials share one client.
package s3client

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/sha256-simd"
)

// DefaultRegion is used when no region is configured. Cloudflare R2 expects "auto".
const DefaultRegion = "auto"

// Config holds configuration for connecting to an S3-compatible service.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// cacheKey identifies a client. The secret is hashed so a rotated secret
// gets a fresh client without the key holding the secret itself.
func (c *Config) cacheKey() string {
	secret := sha256.Sum256([]byte(c.SecretAccessKey))
	return fmt.Sprintf("%s|%s|%s|%s|%t", c.Endpoint, c.Region, c.AccessKeyID, hex.EncodeToString(secret[:]), c.PathStyle)
}

type poolEntry struct {
	client *s3.Client
	http   aws.HTTPClient
}

// Pool manages a pool of S3 clients for different endpoints.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*poolEntry
	timeout time.Duration
	maxIdle int

	// Base HTTP client. It stays buildable so the SDK can layer
	// AWS_CA_BUNDLE root CAs onto its transport.
	httpClient *awshttp.BuildableClient
}

// NewPool creates a new client pool. timeout bounds how long a single
// request may wait for response headers; streaming bodies are not cut off.
func NewPool(timeout time.Duration, maxIdleConns int) *Pool {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	return &Pool{
		clients: make(map[string]*poolEntry),
		timeout: timeout,
		maxIdle: maxIdleConns,
		httpClient: awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.Proxy = http.ProxyFromEnvironment
			tr.MaxIdleConns = maxIdleConns
			tr.MaxIdleConnsPerHost = max(maxIdleConns/10, 2)
			tr.IdleConnTimeout = 90 * time.Second
			tr.ResponseHeaderTimeout = timeout
		}),
	}
}

var (
	defaultPoolOnce sync.Once
	defaultPool     *Pool
)

// Default returns the process-wide pool.
func Default() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(0, 0)
	})
	return defaultPool
}

// GetClient returns an S3 client configured for the given config.
func (p *Pool) GetClient(ctx context.Context, cfg *Config) (*s3.Client, error) {
	cacheKey := cfg.cacheKey()

	p.mu.RLock()
	entry, exists := p.clients[cacheKey]
	p.mu.RUnlock()
	if exists {
		return entry.client, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists := p.clients[cacheKey]; exists {
		return entry.client, nil
	}

	entry, err := p.createClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p.clients[cacheKey] = entry

	logger.Debug().
		Str("endpoint", cfg.Endpoint).
		Str("region", cfg.Region).
		Bool("path_style", cfg.PathStyle).
		Msg("Created new S3 client")

	return entry.client, nil
}

// createClient creates a single-attempt S3 client: retries are disabled so
// every failed call surfaces immediately to the caller. Each client gets
// its own frozen copy of the base HTTP client, so Close can drop its idle
// connections.
func (p *Pool) createClient(ctx context.Context, cfg *Config) (*poolEntry, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(p.httpClient),
		config.WithRetryMaxAttempts(1),
		config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
		config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired),
	}

	// Fall back to the default credential chain when no static keys are set
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if bc, ok := awsCfg.HTTPClient.(*awshttp.BuildableClient); ok {
		awsCfg.HTTPClient = bc.Freeze()
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.PathStyle
		},
	}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &poolEntry{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		http:   awsCfg.HTTPClient,
	}, nil
}

// Len returns the number of cached clients.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Close closes the client pool and releases resources.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.clients {
		if c, ok := entry.http.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
	p.clients = make(map[string]*poolEntry)

	return nil
}
