package mtp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/danmuck/uspctl/internal/script"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/client"
)

type coapDialer struct {
	cfg Config
}

func (d coapDialer) Dial(_ context.Context, t script.Transport) (Sender, error) {
	if strings.TrimSpace(t.CoAPHost) == "" {
		return nil, ErrMissingCoAPHost
	}
	addr := net.JoinHostPort(t.CoAPHost, strconv.Itoa(t.CoAPPort))
	conn, err := udp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("coap dial %s: %w", addr, err)
	}
	return &coapSender{conn: conn, replyTo: d.cfg.CoAP.ReplyTo}, nil
}

type coapSender struct {
	conn    *client.Conn
	replyTo string
}

func (s *coapSender) Send(ctx context.Context, env Envelope) error {
	var opts []message.Option
	if s.replyTo != "" {
		opts = append(opts, message.Option{ID: message.URIQuery, Value: []byte("reply-to=" + s.replyTo)})
	}
	resp, err := s.conn.Post(ctx, resourcePath(env.Transport.CoAPResource), message.AppOctets, bytes.NewReader(env.Record), opts...)
	if err != nil {
		return err
	}
	defer s.conn.ReleaseMessage(resp)
	if code := resp.Code(); code >= codes.BadRequest {
		return fmt.Errorf("coap post %s: %v", env.Transport.CoAPResource, code)
	}
	return nil
}

func (s *coapSender) Close() error {
	return s.conn.Close()
}

func resourcePath(resource string) string {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return script.DefaultCoAPResource
	}
	if !strings.HasPrefix(resource, "/") {
		return "/" + resource
	}
	return resource
}
