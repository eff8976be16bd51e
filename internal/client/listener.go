package client

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// StreamListener subscribes to the live reading stream and calls onMessage
// for every pushed reading. A dropped connection is retried after
// retryDelay until ctx is done.
type StreamListener struct {
	url        string
	retryDelay time.Duration
	onMessage  func([]byte)
	dialer     *websocket.Dialer
}

func NewStreamListener(url string, onMessage func([]byte)) *StreamListener {
	return &StreamListener{
		url:        url,
		retryDelay: 5 * time.Second,
		onMessage:  onMessage,
		dialer:     websocket.DefaultDialer,
	}
}

func (l *StreamListener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).WithField("url", l.url).Warn("stream disconnected")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *StreamListener) listen(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	log.WithField("url", l.url).Info("stream connected")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if l.onMessage != nil {
			l.onMessage(msg)
		}
	}
}
