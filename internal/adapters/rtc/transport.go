// Package rtc is the WebRTC transport: pion peer connections signalled
// through the broker's websocket.
package rtc

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/transport/wire"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHeartbeat = 20 * time.Second
	openTimeout      = 10 * time.Second
)

type Config struct {
	// BrokerURL is the ws:// or wss:// address of the peer endpoint.
	BrokerURL       string
	ICEServers      []string
	HeartbeatPeriod time.Duration
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host peers.
	IncludeLoopback bool
}

type Transport struct {
	cfg    Config
	api    *webrtc.API
	dialer *websocket.Dialer
}

func NewTransport(cfg Config) (*Transport, error) {
	if _, err := url.Parse(cfg.BrokerURL); err != nil || cfg.BrokerURL == "" {
		return nil, fmt.Errorf("broker url %q: invalid", cfg.BrokerURL)
	}
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = DefaultHeartbeat
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: LoggerFactory{}}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	return &Transport{
		cfg:    cfg,
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		dialer: &websocket.Dialer{HandshakeTimeout: openTimeout},
	}, nil
}

func (t *Transport) newPeerConnection() (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{}
	if len(t.cfg.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: t.cfg.ICEServers}}
	}
	return t.api.NewPeerConnection(cfg)
}

// Open registers id with the broker. It fails with ErrIdentityTaken when
// another client holds id.
func (t *Transport) Open(ctx context.Context, id domain.PeerID) (core.TransportSession, error) {
	u, err := url.Parse(t.cfg.BrokerURL)
	if err != nil {
		return nil, core.NewError(core.KindTransport, "open", id, err)
	}
	q := u.Query()
	q.Set("id", string(id))
	u.RawQuery = q.Encode()

	ws, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, core.NewError(core.KindTransport, "open", id, err)
	}
	if err := awaitOpen(ctx, ws); err != nil {
		_ = ws.Close()
		return nil, core.Classify(core.KindTransport, "open", id, err)
	}

	s := newSession(t, id, ws)
	s.start()
	log.Info().Str("module", "rtc").Str("sid", string(id)).Str("broker", u.Host).Msg("session open")
	return s, nil
}

func awaitOpen(ctx context.Context, ws *websocket.Conn) error {
	deadline := time.Now().Add(openTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	_, data, err := ws.ReadMessage()
	if err != nil {
		return err
	}
	msg, err := wire.Decode(data)
	if err != nil {
		return err
	}
	switch msg.Type {
	case wire.TypeOpen:
		return nil
	case wire.TypeError:
		if msg.Error == wire.ErrUnavailableID {
			return core.NewError(core.KindIdentityTaken, "open", "", nil)
		}
		return fmt.Errorf("broker: %s", msg.Error)
	}
	return fmt.Errorf("broker: unexpected %s before open", msg.Type)
}
