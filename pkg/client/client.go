package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Client talks to a running botherd manager over its operator HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // skip TLS verification
}

// TLSClientConfig holds TLS configuration for the client.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path
	ClientCert string // client certificate file
	ClientKey  string // client private key file
	ServerName string // server name for verification
	SkipVerify bool
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new botherd API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the manager is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("manager unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Start launches the configured bot.
func (c *Client) Start(ctx context.Context, botID string) error {
	c.logger.Debug("starting bot", "bot_id", botID)
	u := c.baseURL + "/start?id=" + url.QueryEscape(botID)
	return c.doRequest(ctx, http.MethodPost, u, nil, nil)
}

// Stop stops the bot, waiting up to wait for a graceful exit.
func (c *Client) Stop(ctx context.Context, botID string, wait time.Duration) error {
	c.logger.Debug("stopping bot", "bot_id", botID, "wait", wait)
	u := c.baseURL + "/stop?id=" + url.QueryEscape(botID)
	if wait > 0 {
		u += "&wait=" + wait.String()
	}
	return c.doRequest(ctx, http.MethodPost, u, nil, nil)
}

// Status fetches the status of one bot.
func (c *Client) Status(ctx context.Context, botID string) (BotStatus, error) {
	var st BotStatus
	u := c.baseURL + "/status?id=" + url.QueryEscape(botID)
	err := c.doRequest(ctx, http.MethodGet, u, nil, &st)
	return st, err
}

// StatusAll fetches the status of every configured bot.
func (c *Client) StatusAll(ctx context.Context) ([]BotStatus, error) {
	var sts []BotStatus
	err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/status", nil, &sts)
	return sts, err
}

// Workers lists bot ids with a live control-plane connection.
func (c *Client) Workers(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/workers", nil, &ids)
	return ids, err
}

// Send delivers a custom JSON command to a connected worker.
func (c *Client) Send(ctx context.Context, botID string, payload json.RawMessage) error {
	c.logger.Debug("sending command", "bot_id", botID)
	u := c.baseURL + "/send?id=" + url.QueryEscape(botID)
	return c.doRequest(ctx, http.MethodPost, u, payload, nil)
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

// doRequest performs the HTTP request, decodes an error body on failure, and
// unmarshals the response into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, u string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		c.logger.Error("API request failed", "error", e.Error, "status", resp.StatusCode)
		return fmt.Errorf("API error: %s", e.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
