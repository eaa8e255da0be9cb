package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one sub-operation of a multi-target write.
type Outcome struct {
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`

	err error
}

func (o Outcome) Err() error { return o.err }

// FanoutReport lists every sub-operation outcome in target order. Nothing is
// rolled back; callers decide how to surface partial failure.
type FanoutReport struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (r *FanoutReport) record(target string, err error) {
	o := Outcome{Target: target, err: err}
	if err != nil {
		o.Error = err.Error()
	}
	r.Outcomes = append(r.Outcomes, o)
}

func (r *FanoutReport) merge(other FanoutReport) {
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
}

func (r FanoutReport) OK() bool {
	return r.Err() == nil
}

// Err joins every failed outcome, or returns nil when all succeeded.
func (r FanoutReport) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Target, o.err))
		}
	}
	return errors.Join(errs...)
}

func (r FanoutReport) Failures() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.err != nil {
			out = append(out, o.Target+": "+o.Error)
		}
	}
	return out
}

// fanout runs fn for every target with at most limit in flight and waits for
// all of them. One failure does not cancel the others.
func fanout(ctx context.Context, limit int, targets []string, fn func(ctx context.Context, target string) error) FanoutReport {
	errs := make([]error, len(targets))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, target := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	var report FanoutReport
	for i, target := range targets {
		report.record(target, errs[i])
	}
	return report
}

// sequential runs fn for each target in order, continuing past failures.
func sequential(ctx context.Context, targets []string, fn func(ctx context.Context, target string) error) FanoutReport {
	var report FanoutReport
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			report.record(target, err)
			continue
		}
		report.record(target, fn(ctx, target))
	}
	return report
}
