package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Stream/internal/adapters/memnet"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// demoNet runs a stream inside one process: an in-memory network, synthetic
// capture, and a companion participant in the opposite role.
type demoNet struct {
	net *memnet.Network
}

func newDemoNet() *demoNet {
	return &demoNet{net: memnet.New()}
}

func (d *demoNet) CameraStream(context.Context) (core.Media, error) {
	return memnet.NewMedia("audio", "video"), nil
}

func (d *demoNet) ScreenStream(context.Context) (core.Media, error) {
	return memnet.NewMedia("video"), nil
}

// companion joins the stream in the other role and greets it.
func (d *demoNet) companion(ctx context.Context, main orch.Config) (func(), error) {
	cfg := orch.Config{
		StreamID:    main.StreamID,
		GraceWindow: main.GraceWindow,
		MaxChatLen:  main.MaxChatLen,
	}
	if main.Role == domain.RoleHost {
		cfg.Role, cfg.DisplayName = domain.RoleViewer, "demo-viewer"
	} else {
		cfg.Role, cfg.DisplayName = domain.RoleHost, "demo-host"
	}
	c, err := orch.Connect(ctx, d.net, cfg)
	if err != nil {
		return nil, fmt.Errorf("demo %s: %w", cfg.Role, err)
	}
	switch cfg.Role {
	case domain.RoleHost:
		media, _ := d.CameraStream(ctx)
		if err := c.GoLive(media); err != nil {
			c.Teardown()
			return nil, err
		}
	case domain.RoleViewer:
		if err := c.JoinAsViewer(ctx); err != nil {
			c.Teardown()
			return nil, err
		}
	}
	if _, err := c.SendChatMessage("hi from " + cfg.DisplayName); err != nil {
		log.Debug().Err(err).Msg("demo greeting not sent")
	}
	return c.Teardown, nil
}
