package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/anicoll/relay-controller/internal/pkg/model"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrBadSchedule = errors.New("invalid schedule entry")

type relayBank interface {
	Apply(ctx context.Context, cmd model.Command, source string) error
}

// Scheduler runs classroom automation entries of the form
//
//	"0 19 * * 1-5 = all_off"
//	"30 7 * * 1-5 = on 0"
//
// i.e. a cron spec, an equals sign, an action and an optional relay index.
// Entries are validated up front; a bad one fails startup rather than being
// discovered at fire time.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(entries []string, bank relayBank) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		logger: zap.L(),
	}
	for _, entry := range entries {
		spec, cmd, err := parseEntry(entry)
		if err != nil {
			return nil, err
		}
		entry := entry
		if _, err := s.cron.AddFunc(spec, func() {
			if err := bank.Apply(context.Background(), cmd, model.SourceSchedule); err != nil {
				s.logger.Error("scheduled relay action failed", zap.String("entry", entry), zap.Error(err))
				return
			}
			s.logger.Info("scheduled relay action applied", zap.String("entry", entry))
		}); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrBadSchedule, entry, err)
		}
	}
	return s, nil
}

func parseEntry(entry string) (string, model.Command, error) {
	spec, rhs, found := strings.Cut(entry, "=")
	if !found {
		return "", model.Command{}, fmt.Errorf("%w: %q: missing '='", ErrBadSchedule, entry)
	}
	fields := strings.Fields(rhs)
	if len(fields) == 0 || len(fields) > 2 {
		return "", model.Command{}, fmt.Errorf("%w: %q: want action with optional relay", ErrBadSchedule, entry)
	}
	cmd := model.Command{Action: model.Action(fields[0])}
	if !model.KnownAction(cmd.Action) {
		return "", model.Command{}, fmt.Errorf("%w: %q: unknown action %q", ErrBadSchedule, entry, fields[0])
	}
	if len(fields) == 2 {
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", model.Command{}, fmt.Errorf("%w: %q: relay index: %v", ErrBadSchedule, entry, err)
		}
		cmd.Relay = &idx
	}
	if cmd.Action != model.ActionAllOff && cmd.Relay == nil {
		return "", model.Command{}, fmt.Errorf("%w: %q: action %s requires a relay", ErrBadSchedule, entry, cmd.Action)
	}
	return strings.TrimSpace(spec), cmd, nil
}

// Run fires entries until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}
