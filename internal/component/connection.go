package component

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
)

// Connection is how a protocol client submits its events: straight into the
// local bus on the transactor, over the wire on validators.
type Connection interface {
	SubmitEvent(ctx context.Context, gameAddr string, ev *api.Event) error
}

// LocalConnection feeds submitted events back into the game's own bus as
// server events.
type LocalConnection struct {
	clock Clock
	out   chan frame.Frame
}

// NewLocalConnection builds the transactor-side connection.
func NewLocalConnection(clock Clock) *LocalConnection {
	return &LocalConnection{
		clock: clock,
		out:   make(chan frame.Frame, outputBuffer),
	}
}

func (c *LocalConnection) ID() string {
	return "local-connection"
}

func (c *LocalConnection) Input() chan<- frame.Frame {
	return nil
}

func (c *LocalConnection) Output() <-chan frame.Frame {
	return c.out
}

func (c *LocalConnection) SubmitEvent(_ context.Context, _ string, ev *api.Event) error {
	c.out <- &frame.SendServerEvent{Event: ev, Timestamp: c.clock.NowMillis()}
	return nil
}

// Close stops forwarding into the bus.
func (c *LocalConnection) Close() {
	close(c.out)
}

// SubmitEventRequest is the wire payload of a submitted event.
type SubmitEventRequest struct {
	GameAddr string     `json:"gameAddr"`
	Event    *api.Event `json:"event"`
}

// RemoteConnection talks to the current transactor: events are POSTed, the
// broadcast stream is consumed over a websocket.
type RemoteConnection struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteConnection builds a connection to the transactor at endpoint
// (host:port).
func NewRemoteConnection(endpoint string) *RemoteConnection {
	return &RemoteConnection{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RemoteConnection) SubmitEvent(ctx context.Context, gameAddr string, ev *api.Event) error {
	body, err := json.Marshal(SubmitEventRequest{GameAddr: gameAddr, Event: ev})
	if err != nil {
		return fmt.Errorf("connection: marshal event: %w", err)
	}
	u := url.URL{Scheme: "http", Host: c.endpoint, Path: "/event"}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connection: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection: submit event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connection: submit event: status %d", resp.StatusCode)
	}
	return nil
}

// SubscribeEvents opens the broadcast stream starting at the given settle
// version.  The channel closes when the stream ends.
func (c *RemoteConnection) SubscribeEvents(ctx context.Context, gameAddr string, settleVersion uint64) (<-chan *core.BroadcastFrame, error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     c.endpoint,
		Path:     "/ws",
		RawQuery: fmt.Sprintf("game=%s&settle_version=%d", url.QueryEscape(gameAddr), settleVersion),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connection: dial %s: %w", u.String(), err)
	}

	out := make(chan *core.BroadcastFrame, outputBuffer)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var bf core.BroadcastFrame
			if err := conn.ReadJSON(&bf); err != nil {
				return
			}
			select {
			case out <- &bf:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return out, nil
}
