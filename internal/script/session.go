package script

import (
	"errors"
	"math/big"
	"strconv"
	"strings"
)

const (
	DefaultMessageID    = "1"
	DefaultCoAPResource = "/"
)

// MTP identifies the message transfer protocol selected for a session.
type MTP string

const (
	MTPNone  MTP = ""
	MTPStomp MTP = "stomp"
	MTPCoAP  MTP = "coap"
)

// Transport describes where every message of the session is delivered.
type Transport struct {
	MTP           MTP
	StompInstance int
	StompDest     string
	CoAPHost      string
	CoAPPort      int
	CoAPResource  string
}

// Resolved reports whether a transport was selected.
func (t Transport) Resolved() bool {
	return t.MTP != MTPNone
}

// resolve applies the selection rule: a STOMP destination wins, otherwise a
// positive CoAP port selects CoAP.
func (t Transport) resolve() Transport {
	switch {
	case t.StompDest != "":
		t.MTP = MTPStomp
	case t.CoAPPort > 0:
		t.MTP = MTPCoAP
	default:
		t.MTP = MTPNone
	}
	return t
}

// MessageID is an arbitrary-precision decimal message counter.
type MessageID struct {
	n *big.Int
}

// ParseMessageID parses a non-negative decimal id.
func ParseMessageID(raw string) (MessageID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MessageID{}, ErrInvalidMessageID
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return MessageID{}, ErrInvalidMessageID
		}
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return MessageID{}, ErrInvalidMessageID
	}
	return MessageID{n: n}, nil
}

// MustMessageID is ParseMessageID for constants and tests.
func MustMessageID(raw string) MessageID {
	id, err := ParseMessageID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// Next returns the id incremented by one; the receiver is not modified.
func (id MessageID) Next() MessageID {
	n := new(big.Int)
	if id.n != nil {
		n.Set(id.n)
	}
	return MessageID{n: n.Add(n, big.NewInt(1))}
}

// String renders the canonical decimal form.
func (id MessageID) String() string {
	if id.n == nil {
		return "0"
	}
	return id.n.String()
}

// SessionConfig is parsed once from the first script line.
type SessionConfig struct {
	MessageID MessageID
	Endpoint  string
	Transport Transport
}

// ParseSession parses the session line. Unknown keys and malformed numbers
// are reported as diagnostics. A missing to_id or an unresolved transport is
// returned as an error together with the best-effort config, so callers may
// choose to continue without a destination.
func ParseSession(line string) (SessionConfig, []Diagnostic, error) {
	lexed := Lex(line)
	diags := lexed.Diagnostics
	if len(lexed.Tokens) == 0 {
		return SessionConfig{}, diags, ErrEmptySession
	}

	cfg := SessionConfig{
		MessageID: MustMessageID(DefaultMessageID),
		Transport: Transport{CoAPResource: DefaultCoAPResource},
	}
	var idErr error
	for _, tok := range lexed.Tokens {
		if tok.Kind != TokenPair {
			diags = append(diags, Diagnostic{Pos: tok.Pos, Key: tok.Key, Reason: reasonUnknownGroup})
			continue
		}
		switch tok.Key {
		case "msg_id":
			id, err := ParseMessageID(tok.Value)
			if err != nil {
				idErr = err
				continue
			}
			cfg.MessageID = id
		case "to_id":
			cfg.Endpoint = tok.Value
		case "stomp_instance":
			cfg.Transport.StompInstance = atoi(tok, &diags)
		case "stomp_agent_dest":
			cfg.Transport.StompDest = tok.Value
		case "coap_host":
			cfg.Transport.CoAPHost = tok.Value
		case "coap_port":
			cfg.Transport.CoAPPort = atoi(tok, &diags)
		case "coap_resource":
			cfg.Transport.CoAPResource = tok.Value
		default:
			diags = append(diags, Diagnostic{Pos: tok.Pos, Key: tok.Key, Reason: reasonUnrecognizedKey})
		}
	}
	cfg.Transport = cfg.Transport.resolve()

	var errs []error
	if idErr != nil {
		errs = append(errs, idErr)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		errs = append(errs, ErrMissingEndpoint)
	}
	if !cfg.Transport.Resolved() {
		errs = append(errs, ErrTransportUnresolved)
	}
	return cfg, diags, errors.Join(errs...)
}

// atoi parses a decimal int, recording a diagnostic and yielding zero on
// malformed input.
func atoi(tok Token, diags *[]Diagnostic) int {
	v, err := strconv.Atoi(strings.TrimSpace(tok.Value))
	if err != nil {
		*diags = append(*diags, Diagnostic{Pos: tok.Pos, Key: tok.Key, Reason: "invalid integer " + strconv.Quote(tok.Value)})
		return 0
	}
	return v
}
