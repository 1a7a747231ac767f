package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/httpclient"
	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/internal/rate"
	"github.com/Checker-Finance/navi/pkg/model"
)

const rateKey = "messaging"

// Client reads trade message threads from the messaging service.
type Client struct {
	baseURL *url.URL
	token   string
	exec    *httpclient.Executor
	logger  *zap.Logger
}

// Config holds the messaging service settings.
type Config struct {
	BaseURL  string
	Token    string
	RetryMax int
}

type threadResponse struct {
	Messages []model.Message `json:"messages"`
}

// New builds a Client. rateMgr may be nil.
func New(cfg Config, httpClient *http.Client, rateMgr *rate.Manager, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid messaging base url %q", cfg.BaseURL)
	}
	exec := httpclient.New(logger, rateMgr, httpClient, cfg.RetryMax, "messaging",
		httpclient.WithObserver(metrics.IncMessaging),
		httpclient.WithErrorHandler(decodeError))
	return &Client{baseURL: base, token: cfg.Token, exec: exec, logger: logger}, nil
}

// Messages fetches the thread for naviID in the order the service returns it.
// An unknown thread is an empty thread.
func (c *Client) Messages(ctx context.Context, naviID int64) ([]model.Message, error) {
	u := c.baseURL.JoinPath("navis", fmt.Sprint(naviID), "messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var out threadResponse
	if err := c.exec.DoJSON(ctx, req, rateKey, &out); err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			return []model.Message{}, nil
		}
		c.logger.Warn("messaging.fetch_failed", zap.Int64("navi_id", naviID), zap.Error(err))
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []model.Message{}
	}
	return out.Messages, nil
}
