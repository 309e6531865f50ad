package mtp

import (
	"context"
	"fmt"
	"net"

	"github.com/danmuck/uspctl/internal/script"
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
)

// ContentTypeUSP is the STOMP content-type of a USP Record.
const ContentTypeUSP = "application/vnd.bbf.usp.msg"

// HeaderReplyToDest names the destination the agent answers on.
const HeaderReplyToDest = "reply-to-dest"

type stompDialer struct {
	cfg Config
}

func (d stompDialer) Dial(ctx context.Context, t script.Transport) (Sender, error) {
	broker, ok := d.cfg.Broker(t.StompInstance)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBroker, t.StompInstance)
	}

	dialer := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", broker.Addr)
	if err != nil {
		return nil, err
	}

	var opts []func(*stomp.Conn) error
	if broker.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(broker.Login, broker.Passcode))
	}
	if broker.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(broker.Host))
	}
	conn, err := stomp.Connect(netConn, opts...)
	if err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("stomp connect %s: %w", broker.Addr, err)
	}
	return &stompSender{conn: conn, replyDest: broker.ReplyDest}, nil
}

type stompSender struct {
	conn      *stomp.Conn
	replyDest string
}

// Send publishes the record to the session destination. go-stomp has no
// per-send deadline, so ctx only guards the call from starting late.
func (s *stompSender) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var opts []func(*frame.Frame) error
	if s.replyDest != "" {
		opts = append(opts, stomp.SendOpt.Header(HeaderReplyToDest, s.replyDest))
	}
	return s.conn.Send(env.Transport.StompDest, ContentTypeUSP, env.Record, opts...)
}

func (s *stompSender) Close() error {
	return s.conn.Disconnect()
}
