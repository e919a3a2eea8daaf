package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Stream/internal/adapters/capture"
	"github.com/dkeye/Stream/internal/adapters/rtc"
	"github.com/dkeye/Stream/internal/app/device"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/config"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("streamer", pflag.ExitOnError)
	config.PeerFlags(flags)
	debug := flags.Bool("debug", false, "debug logging")
	_ = flags.Parse(os.Args[1:])
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	v := config.NewViper()
	if err := config.BindFlags(v, flags); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg.Peer, cfg.Chat); err != nil {
		fmt.Fprintln(os.Stderr, core.UserMessage(err))
		os.Exit(1)
	}
}

type participant struct {
	coord   *orch.Coordinator
	binding *device.Binding
	source  device.Source
}

func run(ctx context.Context, pc config.PeerConfig, cc config.ChatConfig) error {
	role, err := domain.ParseRole(pc.Role)
	if err != nil {
		return err
	}
	src, err := device.ParseSource(pc.Source)
	if err != nil {
		return err
	}

	tr, demo, err := transport(pc)
	if err != nil {
		return err
	}

	ocfg := orch.Config{
		Role:        role,
		StreamID:    domain.StreamID(pc.StreamID),
		DisplayName: pc.DisplayName,
		GraceWindow: pc.GraceWindow,
		MaxChatLen:  cc.MaxLength,
		OnChange:    newReporter().report,
	}
	coord, err := orch.Connect(ctx, tr, ocfg)
	if err != nil {
		return err
	}
	defer coord.Teardown()
	log.Info().Str("sid", string(coord.Identity())).Msg("connected")

	var media core.CaptureSource
	if demo != nil {
		media = demo
	} else {
		cs, err := capture.New(capture.DefaultOptions())
		if err != nil {
			return err
		}
		media = cs
	}

	if demo != nil {
		stop, err := demo.companion(ctx, ocfg)
		if err != nil {
			return err
		}
		defer stop()
	}

	p := &participant{coord: coord, source: src}
	switch role {
	case domain.RoleHost:
		p.binding = device.New(media, coord)
		if _, err := p.binding.Start(ctx, src); err != nil {
			return err
		}
		if err := p.binding.GoLive(); err != nil {
			return err
		}
		defer func() { _ = p.binding.Stop() }()
	case domain.RoleViewer:
		if err := coord.JoinAsViewer(ctx); err != nil {
			fmt.Fprintln(os.Stderr, core.UserMessage(err))
		}
	}

	lines := make(chan string)
	go readLines(lines)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-coord.Done():
			if err := coord.State().LastError; err != nil {
				return err
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := p.command(ctx, media, line); quit {
				return nil
			}
		}
	}
}

func transport(pc config.PeerConfig) (core.Transport, *demoNet, error) {
	switch pc.Transport {
	case "rtc":
		tr, err := rtc.NewTransport(rtc.Config{
			BrokerURL:  pc.BrokerURL,
			ICEServers: pc.ICEServers,
		})
		return tr, nil, err
	case "mem":
		d := newDemoNet()
		return d.net, d, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", pc.Transport)
}

func readLines(out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// command runs one stdin line and reports whether to quit.
func (p *participant) command(ctx context.Context, src core.CaptureSource, line string) bool {
	line = strings.TrimSpace(line)
	var err error
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/end":
		if p.binding == nil {
			err = orch.ErrNotHost
			break
		}
		err = p.binding.Stop()
	case "/live":
		if p.binding == nil {
			err = orch.ErrNotHost
			break
		}
		if p.binding.Active() == nil {
			_, err = p.binding.Start(ctx, p.source)
		}
		if err == nil {
			err = p.binding.GoLive()
		}
	case "/join":
		err = p.coord.JoinAsViewer(ctx)
	case "/share":
		var m core.Media
		m, err = src.CameraStream(ctx)
		if err == nil {
			if err = p.coord.ShareMedia(ctx, m); err != nil {
				core.StopMedia(m)
			}
		}
	case "/unshare":
		err = p.coord.StopSharing()
	case "/video", "/audio":
		kind := strings.TrimPrefix(line, "/")
		var on bool
		if on, err = p.toggle(kind); err == nil {
			fmt.Fprintf(os.Stdout, "%s enabled: %t\n", kind, on)
		}
	default:
		if strings.HasPrefix(line, "/") {
			fmt.Fprintln(os.Stderr, "commands: /quit /end /live /join /share /unshare /video /audio")
			return false
		}
		_, err = p.coord.SendChatMessage(line)
	}
	if err != nil {
		if errors.Is(err, domain.ErrEmptyMessage) || errors.Is(err, domain.ErrMessageTooLong) ||
			errors.Is(err, device.ErrNoMedia) || errors.Is(err, device.ErrNoTrack) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintln(os.Stderr, core.UserMessage(err))
		}
	}
	return false
}

// toggle switches the host capture, or on a viewer the relay of the
// received stream.
func (p *participant) toggle(kind string) (bool, error) {
	if p.binding != nil {
		return p.binding.Toggle(kind)
	}
	m := p.coord.State().RemoteMedia
	if m == nil {
		return false, device.ErrNoMedia
	}
	on := true
	for _, t := range m.Tracks() {
		if s, ok := t.(core.Switchable); ok && t.Kind() == kind {
			on = !s.Enabled()
			break
		}
	}
	if core.SetEnabled(m, kind, on) == 0 {
		return false, fmt.Errorf("%w: %s", device.ErrNoTrack, kind)
	}
	return on, nil
}
