package queue

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/mintcal/mintcal/internal/domain"
)

// panicReason is both the failure reason and the prefix the recovery
// boundary looks for in the persisted last_error. CompleteFailure stores
// ErrorText() which renders as "panic: <detail>", so the check works
// across processes, not just within one dispatcher.
const panicReason = "panic"

// safeExecute runs a handler under a recovery boundary. A first panic for
// a job becomes a retryable failure; a panic on a row whose last_error
// already records a panic becomes terminal, so a poison-pill payload
// cannot crash workers once per remaining attempt forever.
func safeExecute(ctx domain.Context, h Handler, run *JobRun) (res domain.Result) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		lg := run.Log
		if lg == nil {
			lg = slog.Default()
		}
		lg.Error("handler panicked",
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())))
		err := fmt.Errorf("%v", r)
		if strings.HasPrefix(run.LastError, panicReason+":") {
			res = domain.TerminalFailure(panicReason, err)
			return
		}
		res = domain.RetryableFailure(panicReason, err)
	}()
	return h.Execute(ctx, run)
}
