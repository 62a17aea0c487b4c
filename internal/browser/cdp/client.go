package cdp

import (
	"context"
	"fmt"
	neturl "net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/worksnap/backend/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Target is one remote debugging target as reported by /json/list.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	Title                string `json:"title"`
	FaviconURL           string `json:"faviconUrl,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// VersionInfo is the /json/version identity payload.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// Client speaks the browser remote-debugging protocol over its HTTP
// discovery endpoints and per-target WebSocket connections. The protocol is
// a potentially-absent service: connection refusal at any call site is a
// soft failure, never an error surfaced to capture flows.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	dialer  *websocket.Dialer
	timeout time.Duration
	log     *logging.Logger
}

// NewClient creates a protocol client with the given per-call timeout.
func NewClient(timeout time.Duration, log *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}

	// Share the retryable client's transport; retries themselves stay off
	// because a refused probe must report "inactive" immediately.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "worksnap-capture/1.0")
	httpClient.SetTransport(retryClient.HTTPClient.Transport)

	return &Client{
		http: httpClient,
		// Bound the probe rate so a wide port scan does not hammer
		// localhost sockets.
		limiter: rate.NewLimiter(rate.Limit(50), 10),
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		timeout: timeout,
		log:     log,
	}
}

// ListTargets fetches all debugging targets on the port.
func (c *Client) ListTargets(ctx context.Context, port int) ([]Target, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var targets []Target
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&targets).
		Get(fmt.Sprintf("http://127.0.0.1:%d/json/list", port))
	if err != nil {
		return nil, fmt.Errorf("list targets on port %d: %w", port, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list targets on port %d: status %d", port, resp.StatusCode())
	}
	return targets, nil
}

// ProbePort reports whether the port answers the protocol with at least one
// target. Connection errors mean "inactive", never an error.
func (c *Client) ProbePort(ctx context.Context, port int) bool {
	targets, err := c.ListTargets(ctx, port)
	if err != nil {
		return false
	}
	return len(targets) > 0
}

// Version fetches the identity payload for the port.
func (c *Client) Version(ctx context.Context, port int) (*VersionInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var info VersionInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&info).
		Get(fmt.Sprintf("http://127.0.0.1:%d/json/version", port))
	if err != nil {
		return nil, fmt.Errorf("version on port %d: %w", port, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("version on port %d: status %d", port, resp.StatusCode())
	}
	return &info, nil
}

// CreateTarget opens a new tab at the given URL. Newer protocol versions
// require PUT on /json/new; older ones accepted GET, so that is the
// fallback.
func (c *Client) CreateTarget(ctx context.Context, port int, url string) error {
	endpoint := fmt.Sprintf("http://127.0.0.1:%d/json/new?%s", port, neturl.QueryEscape(url))

	resp, err := c.http.R().SetContext(ctx).Put(endpoint)
	if err == nil && !resp.IsError() {
		return nil
	}

	resp, err = c.http.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return fmt.Errorf("create target on port %d: %w", port, err)
	}
	if resp.IsError() {
		return fmt.Errorf("create target on port %d: status %d", port, resp.StatusCode())
	}
	return nil
}

// wsMessage is the protocol's WebSocket envelope.
type wsMessage struct {
	ID     int                    `json:"id"`
	Method string                 `json:"method,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
	Result map[string]interface{} `json:"result,omitempty"`
}

// EnrichTarget fills a target's missing URL or title by opening the target
// and asking the page directly: the frame tree for the URL, a script
// evaluation for the document title. Best effort; the target is left with
// whatever could be resolved.
func (c *Client) EnrichTarget(ctx context.Context, t *Target) {
	if t.WebSocketDebuggerURL == "" {
		return
	}
	if t.URL != "" && t.Title != "" {
		return
	}

	conn, _, err := c.dialer.DialContext(ctx, t.WebSocketDebuggerURL, nil)
	if err != nil {
		c.log.Debug("target enrichment dial failed", zap.Error(err))
		return
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	if t.URL == "" {
		if result, err := c.roundTrip(conn, 1, "Page.getFrameTree", nil); err == nil {
			if url := frameURL(result); url != "" {
				t.URL = url
			}
		}
	}

	if t.Title == "" {
		params := map[string]interface{}{
			"expression":    "document.title",
			"returnByValue": true,
		}
		if result, err := c.roundTrip(conn, 2, "Runtime.evaluate", params); err == nil {
			if title := evaluatedString(result); title != "" {
				t.Title = title
			}
		}
	}
}

// roundTrip sends one protocol command and reads frames until the matching
// response id arrives, skipping interleaved protocol events.
func (c *Client) roundTrip(conn *websocket.Conn, id int, method string, params map[string]interface{}) (map[string]interface{}, error) {
	req := wsMessage{ID: id, Method: method, Params: params}
	payload, err := sonic.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, err
	}

	for i := 0; i < 16; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		var msg wsMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.ID == id {
			return msg.Result, nil
		}
	}
	return nil, fmt.Errorf("no response for %s", method)
}

func frameURL(result map[string]interface{}) string {
	tree, ok := result["frameTree"].(map[string]interface{})
	if !ok {
		return ""
	}
	frame, ok := tree["frame"].(map[string]interface{})
	if !ok {
		return ""
	}
	url, _ := frame["url"].(string)
	return url
}

func evaluatedString(result map[string]interface{}) string {
	inner, ok := result["result"].(map[string]interface{})
	if !ok {
		return ""
	}
	value, _ := inner["value"].(string)
	return value
}
