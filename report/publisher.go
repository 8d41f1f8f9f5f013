package report

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Publisher 把报告推送到看板的 websocket 端点。每次发布建立一条短连接，
// 发送一条 JSON 消息后正常关闭。
type Publisher struct {
	URL     string
	Dialer  *websocket.Dialer
	Header  http.Header
	Timeout time.Duration
}

// NewPublisher returns a publisher with the default dialer.
func NewPublisher(url string) *Publisher {
	return &Publisher{
		URL:     url,
		Dialer:  websocket.DefaultDialer,
		Timeout: 10 * time.Second,
	}
}

// Envelope 推送消息外层，便于看板按类型分发。
type Envelope struct {
	Type   string  `json:"type"`
	Report *Report `json:"report"`
}

// Publish sends r as a single text message.
func (p *Publisher) Publish(ctx context.Context, r *Report) error {
	if p.URL == "" {
		return fmt.Errorf("publisher url is empty")
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	conn, _, err := dialer.DialContext(ctx, p.URL, p.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.URL, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(Envelope{Type: "regime_report", Report: r}); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	return nil
}
