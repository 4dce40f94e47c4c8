package server

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/x11"
)

var (
	instance     *WindowServer
	instanceOnce sync.Once
	instanceOpts = Options{Screen: -1}
	optsMu       sync.Mutex

	// initCount counts singleton initialisations; it never exceeds one.
	initCount atomic.Int32

	// fatal ends the process when the singleton cannot be initialised.
	fatal = func(err error) {
		ev := logger.WithComponent("server").Fatal().Err(err)
		var rerr *x11.ReplyError
		if errors.As(err, &rerr) {
			ev = ev.
				Uint8("code", rerr.ErrorCode).
				Uint8("major_opcode", rerr.MajorOpcode).
				Uint16("minor_opcode", rerr.MinorOpcode)
		}
		var cerr *x11.ConnectError
		if errors.As(err, &cerr) {
			ev = ev.Int("code", cerr.Code).Str("display", cerr.Display)
		}
		ev.Msg("Failed to initialize window server")
	}
)

// Configure sets the options Instance uses. It has no effect once the
// singleton exists.
func Configure(opts Options) {
	optsMu.Lock()
	defer optsMu.Unlock()
	instanceOpts = opts
}

// Instance returns the process-wide WindowServer, opening it on first use.
// Initialisation failure is fatal.
func Instance() *WindowServer {
	instanceOnce.Do(func() {
		initCount.Add(1)

		optsMu.Lock()
		opts := instanceOpts
		optsMu.Unlock()

		s, err := Open(opts)
		if err != nil {
			fatal(err)
			return
		}
		instance = s
	})
	return instance
}

// Initialized reports whether Instance has already run.
func Initialized() bool {
	return initCount.Load() > 0
}

// Shutdown shuts down the singleton if it was ever created.
func Shutdown() {
	if !Initialized() {
		return
	}
	if s := Instance(); s != nil {
		s.Shutdown()
	}
}
