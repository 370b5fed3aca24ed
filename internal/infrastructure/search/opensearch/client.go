// Package opensearch provides the full-text matter index.  The database is
// the source of truth; the index is a projection rebuilt on write and
// tolerated lossy on failure.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Client wraps the OpenSearch client with the configured index prefix.
type Client struct {
	client *opensearch.Client
	prefix string
	logger logging.Logger
}

// NewClient connects and verifies the cluster with a ping.
func NewClient(cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    3,
		RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		RetryOnStatus: []int{429, 502, 503, 504},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSearchError, "create opensearch client")
	}

	c := &Client{client: osClient, prefix: cfg.IndexPrefix, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}

	logger.Info("opensearch connected", logging.Any("addresses", cfg.Addresses))
	return c, nil
}

// NewClientWithOpenSearch wraps an existing client.  Test constructor.
func NewClientWithOpenSearch(osClient *opensearch.Client, prefix string, logger logging.Logger) *Client {
	return &Client{client: osClient, prefix: prefix, logger: logger}
}

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "opensearch ping")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errors.Newf(errors.CodeSearchError, "opensearch ping status %s", resp.Status())
	}
	return nil
}

// OpenSearch exposes the underlying client.
func (c *Client) OpenSearch() *opensearch.Client { return c.client }

// MatterIndex is the name of the matter index under the configured prefix.
func (c *Client) MatterIndex() string {
	if c.prefix == "" {
		return "matters"
	}
	return c.prefix + "-matters"
}
