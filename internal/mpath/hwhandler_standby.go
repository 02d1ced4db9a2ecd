package mpath

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StandbyName is the table name of the active/passive array handler
const StandbyName = "standby"

const defaultActivationTimeout = 30 * time.Second

// standbyHandler drives arrays where only one controller owns the volume at
// a time. Switching to a group means telling its controller to take over.
type standbyHandler struct {
	timeout    time.Duration
	timeoutArg string
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newStandbyHandler(args []string, logger *zap.Logger) (HardwareHandler, error) {
	h := &standbyHandler{
		timeout: defaultActivationTimeout,
		logger:  logger,
	}

	switch len(args) {
	case 0:
	case 1:
		secs, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil || secs == 0 {
			return nil, fmt.Errorf("standby: invalid activation timeout %q: %w", args[0], ErrInvalidArgument)
		}
		h.timeout = time.Duration(secs) * time.Second
		h.timeoutArg = args[0]
	default:
		return nil, fmt.Errorf("standby: too many arguments: %w", ErrInvalidArgument)
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h, nil
}

func (h *standbyHandler) Name() string { return StandbyName }

func (h *standbyHandler) ActivateGroup(bypassed bool, p *Path, done func(ErrorAction)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		act, ok := p.Device().(Activator)
		if !ok {
			done(0)
			return
		}

		ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
		defer cancel()

		start := time.Now()
		err := act.Activate(ctx)
		if err != nil {
			h.logger.Warn("group activation failed",
				zap.String("path", p.Name()),
				zap.Bool("bypassed", bypassed),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			done(h.activationAction(err))
			return
		}

		h.logger.Debug("group activated",
			zap.String("path", p.Name()),
			zap.Duration("elapsed", time.Since(start)))
		done(0)
	}()
}

func (h *standbyHandler) activationAction(err error) ErrorAction {
	if errors.Is(err, ErrBusy) {
		return ActionRetryActivation
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ActionFailPath
	}
	return h.classify(err)
}

func (h *standbyHandler) ClassifyError(_ *Request, err error) ErrorAction {
	return h.classify(err)
}

func (h *standbyHandler) classify(err error) ErrorAction {
	switch {
	case errors.Is(err, ErrGroupStandby):
		return ActionFailPath | ActionBypassGroup
	case errors.Is(err, ErrMedium):
		return ActionHardError
	case errors.Is(err, ErrBusy):
		return 0
	default:
		return ActionFailPath
	}
}

func (h *standbyHandler) Status(kind StatusType) string {
	if kind == StatusTable && h.timeoutArg != "" {
		return fmt.Sprintf("2 %s %s ", StandbyName, h.timeoutArg)
	}
	return fmt.Sprintf("1 %s ", StandbyName)
}

// Close aborts activations in flight and waits for their callbacks
func (h *standbyHandler) Close() error {
	h.cancel()
	h.wg.Wait()
	return nil
}
