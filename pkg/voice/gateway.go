// Package voice connects the interaction protocol to a telephony gateway
// over a websocket. The gateway owns speech synthesis and recognition; this
// side only exchanges prompt and transcript frames.
package voice

import (
	"context"
	"fmt"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"assistant/pkg/logx"
)

// frameType values on the gateway wire.
const (
	frameSpeak      = "speak"
	frameTranscript = "transcript"
)

// frame is one JSON message to or from the gateway.
type frame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// GatewayChannel implements interaction.Channel over a websocket to the
// telephony gateway. Each Deliver dials a fresh call; the connection lives
// until the reply window closes.
type GatewayChannel struct {
	url         string
	dialTimeout time.Duration
	logger      *logx.Logger
	conn        *websocket.Conn
}

// NewGatewayChannel creates a channel pointing at the gateway URL.
func NewGatewayChannel(url string, dialTimeout time.Duration) *GatewayChannel {
	return &GatewayChannel{
		url:         url,
		dialTimeout: dialTimeout,
		logger:      logx.NewLogger("voice"),
	}
}

// Deliver dials the gateway and speaks the prompt.
func (g *GatewayChannel) Deliver(ctx context.Context, prompt string) error {
	dialCtx, cancel := context.WithTimeout(ctx, g.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, g.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial voice gateway %s: %w", g.url, err)
	}
	g.conn = conn

	if err := wsjson.Write(ctx, conn, frame{Type: frameSpeak, Text: prompt}); err != nil {
		g.closeConn()
		return fmt.Errorf("failed to send prompt to gateway: %w", err)
	}

	g.logger.Info("Prompt delivered to voice gateway")
	return nil
}

// AwaitReply blocks until the gateway sends a transcript frame or the
// deadline passes.
func (g *GatewayChannel) AwaitReply(ctx context.Context, deadline time.Time) (string, error) {
	if g.conn == nil {
		return "", fmt.Errorf("no active gateway connection")
	}
	defer g.closeConn()

	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		var f frame
		if err := wsjson.Read(waitCtx, g.conn, &f); err != nil {
			if waitCtx.Err() != nil {
				return "", waitCtx.Err()
			}
			return "", fmt.Errorf("gateway read failed: %w", err)
		}
		if f.Type == frameTranscript && f.Text != "" {
			return f.Text, nil
		}
		// Keepalive or partial frames are skipped.
	}
}

func (g *GatewayChannel) closeConn() {
	if g.conn != nil {
		_ = g.conn.Close(websocket.StatusNormalClosure, "done")
		g.conn = nil
	}
}
