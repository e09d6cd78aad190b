package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// HTTPFetcher reads the public stats endpoint
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for a server base URL such as http://pob.local:5000
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// FetchStats implements Fetcher
func (f *HTTPFetcher) FetchStats(ctx context.Context, scope *int64) (*models.DashboardStats, error) {
	u, err := url.Parse(f.baseURL + "/api/v1/dashboard/public")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if scope != nil {
		q := u.Query()
		q.Set("location_id", strconv.FormatInt(*scope, 10))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch stats: unexpected status %d", resp.StatusCode)
	}

	var stats models.DashboardStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

// LiveURL derives the websocket URL of the live channel from a server base URL
func LiveURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/live"
	return u.String(), nil
}

// Client keeps a Session attached to the live channel, reconnecting with backoff
type Client struct {
	url        string
	session    *Session
	dialer     *websocket.Dialer
	readWait   time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     logrus.FieldLogger
}

// NewClient creates a Client for the websocket URL liveURL
func NewClient(liveURL string, session *Session, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		url:     liveURL,
		session: session,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		// Server pings every 54s by default
		readWait:   90 * time.Second,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		logger:     logger,
	}
}

// Run connects and delivers live frames to the session until ctx is done
func (c *Client) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			backoff = c.minBackoff
			c.session.SetConnected(true)
			c.logger.WithField("url", c.url).Info("Live channel connected")

			err = c.readLoop(ctx, conn)
			c.session.SetConnected(false)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.WithError(err).WithField("retry_in", backoff.String()).Warn("Live channel down, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.readWait))
		c.session.HandleMessage(message)
	}
}
