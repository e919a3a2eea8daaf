package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
)

// reporter logs state transitions. It runs on the coordinator loop.
type reporter struct {
	logger  zerolog.Logger
	last    orch.State
	printed int
}

func newReporter() *reporter {
	return &reporter{logger: log.With().Str("module", "streamer").Logger()}
}

func (r *reporter) report(st orch.State) {
	prev := r.last
	r.last = st
	if st.Status != prev.Status || st.Live != prev.Live || st.ViewerCount != prev.ViewerCount ||
		(st.RemoteMedia == nil) != (prev.RemoteMedia == nil) || len(st.OtherViewers) != len(prev.OtherViewers) ||
		len(st.ViewerStreams) != len(prev.ViewerStreams) {
		r.logger.Info().
			Str("status", string(st.Status)).
			Bool("live", st.Live).
			Int("viewers", st.ViewerCount).
			Bool("receiving", st.RemoteMedia != nil).
			Int("viewer_streams", len(st.ViewerStreams)).
			Int("other_viewers", len(st.OtherViewers)).
			Msg("state")
	}
	if st.LastError != nil && st.LastError != prev.LastError {
		r.logger.Warn().Err(st.LastError).Msg(core.UserMessage(st.LastError))
	}
	if r.printed > len(st.ChatLog) {
		r.printed = 0
	}
	for _, m := range st.ChatLog[r.printed:] {
		fmt.Fprintf(os.Stdout, "[%s] %s\n", m.SenderName, m.Text)
	}
	r.printed = len(st.ChatLog)
}
