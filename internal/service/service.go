// Package service implements the hackathon workflows: idea promotion, voting,
// project claims and the group membership state machine.
//
// Every workflow takes the acting user and a request-local notice queue.
// Permission and state failures add a notice and return an error wrapping
// domain.ErrPermissionDenied, domain.ErrInvalidState or domain.ErrInvalidInput
// without changing stored state.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/config"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/metrics"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/storage"
)

// Options tunes the workflows.
type Options struct {
	// MaxRetries bounds how often a read-decide-write cycle is repeated
	// after a version conflict.
	MaxRetries   uint64
	RetryBackoff time.Duration
	// OwnerLeavePolicy is one of config.OwnerLeaveDeny, OwnerLeaveAllow or
	// OwnerLeaveDisband.
	OwnerLeavePolicy string

	Now   func() time.Time
	NewID func() string
}

func (o *Options) setDefaults() {
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 10 * time.Millisecond
	}
	if o.OwnerLeavePolicy == "" {
		o.OwnerLeavePolicy = config.OwnerLeaveDeny
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.New().String() }
	}
}

// OptionsFromConfig builds Options from the application configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxRetries:       cfg.Store.MaxRetries,
		RetryBackoff:     cfg.Store.RetryBackoff,
		OwnerLeavePolicy: cfg.Groups.OwnerLeavePolicy,
	}
}

// Services bundles the workflow services over one store.
type Services struct {
	Ideas    *IdeaService
	Projects *ProjectService
	Groups   *GroupService
}

// New creates the workflow services.
func New(store storage.Storage, log *zap.Logger, opts Options) *Services {
	opts.setDefaults()
	b := base{store: store, log: log, opts: opts}
	return &Services{
		Ideas:    &IdeaService{base: b},
		Projects: &ProjectService{base: b},
		Groups:   &GroupService{base: b},
	}
}

const maxRetryBackoff = 500 * time.Millisecond

type base struct {
	store storage.Storage
	log   *zap.Logger
	opts  Options
}

// mutate runs attempt until it returns something other than a version
// conflict or the retry budget is spent, and records the outcome. Each attempt
// collects notices on its own queue; only those of the final attempt are moved
// to n.
func (b *base) mutate(ctx context.Context, action string, n *notice.Notices, attempt func(n *notice.Notices) error) error {
	return b.done(action, b.retryConflicts(ctx, action, n, attempt))
}

// retryConflicts is mutate without the outcome, for workflows with further
// writes.
func (b *base) retryConflicts(ctx context.Context, action string, n *notice.Notices, attempt func(n *notice.Notices) error) error {
	backoff := retry.NewExponential(b.opts.RetryBackoff)
	backoff = retry.WithJitterPercent(25, backoff)
	backoff = retry.WithCappedDuration(maxRetryBackoff, backoff)
	backoff = retry.WithMaxRetries(b.opts.MaxRetries, backoff)

	var last *notice.Notices
	tries := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if tries > 0 {
			metrics.ConflictRetriesTotal.WithLabelValues(action).Inc()
			b.log.Debug("retrying after version conflict", zap.String("action", action), zap.Int("attempt", tries+1))
		}
		tries++
		last = &notice.Notices{}
		err := attempt(last)
		if errors.Is(err, domain.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if last != nil {
		n.Merge(last)
	}
	return err
}

// done records the outcome of a workflow and returns err unchanged.
func (b *base) done(action string, err error) error {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPermissionDenied):
		outcome = metrics.OutcomeDenied
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidInput):
		outcome = metrics.OutcomeInvalid
	case errors.Is(err, domain.ErrNotFound):
		outcome = metrics.OutcomeNotFound
	default:
		outcome = metrics.OutcomeError
	}
	metrics.WorkflowsTotal.WithLabelValues(action, outcome).Inc()
	return err
}

// deny queues msg and returns a permission error. Denials are logged.
func (b *base) deny(n *notice.Notices, actor domain.Actor, action, msg string) error {
	b.log.Warn("permission denied",
		zap.String("action", action),
		zap.String("user", actor.User.String()),
		zap.Bool("admin", actor.Admin))
	n.Add(msg)
	return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, msg)
}

// inconsistent logs a multi-entity write that stopped half way.
func (b *base) inconsistent(action, what string, fields ...zap.Field) {
	metrics.InconsistenciesTotal.WithLabelValues(action).Inc()
	b.log.Error("partial write",
		append([]zap.Field{zap.String("action", action), zap.String("inconsistency", what)}, fields...)...)
}

// reject queues msg and returns a state error.
func reject(n *notice.Notices, msg string) error {
	n.Add(msg)
	return fmt.Errorf("%w: %s", domain.ErrInvalidState, msg)
}

// invalid queues the validation message and returns an input error.
func invalid(n *notice.Notices, err error) error {
	n.Add(err.Error())
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

// requireUser denies anonymous actors with msg.
func (b *base) requireUser(n *notice.Notices, actor domain.Actor, action, msg string) error {
	if !actor.Authenticated() {
		return b.deny(n, actor, action, msg)
	}
	return nil
}
