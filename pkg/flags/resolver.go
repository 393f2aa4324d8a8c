package flags

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/logger"
)

// Assigner places a participant into a variant of an experiment.
type Assigner interface {
	AssignExperiment(ctx context.Context, exp *experiment.Experiment, participantID string) (experiment.Variant, error)
}

// Resolver computes the effective value of a flag.
type Resolver struct {
	provider    Provider
	experiments experiment.Reader
	assigner    Assigner
	logger      *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver. provider may be nil when every flag is
// experiment driven.
func NewResolver(provider Provider, experiments experiment.Reader, assigner Assigner, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider:    provider,
		experiments: experiments,
		assigner:    assigner,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the value of flag for a participant. It has no side effects.
func (r *Resolver) Resolve(ctx context.Context, flag, participantID string) (Resolution, error) {
	if participantID == "" {
		return Resolution{}, ErrEmptyParticipant
	}

	if exp, ok := r.experiments.LookupFlag(flag); ok {
		switch {
		case exp.State.Assigning():
			v, err := r.assigner.AssignExperiment(ctx, exp, participantID)
			if err != nil {
				r.logger.ErrorContext(ctx, "flag assignment failed",
					logger.Flag(flag), logger.ExperimentID(exp.ID), logger.Error(err))
				return Resolution{}, err
			}
			return fromVariant(flag, exp, v, ReasonExperimentAssignment), nil
		case exp.State.Finished():
			v, ok := exp.ServedVariant()
			if !ok {
				return Resolution{}, errors.Join(ErrFlagNotFound, experiment.ErrNotFound)
			}
			return fromVariant(flag, exp, v, ReasonExperimentConcluded), nil
		}
	}

	if r.provider == nil {
		return Resolution{}, ErrFlagNotFound
	}
	f, err := r.provider.GetFlag(ctx, flag)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Flag: flag, Enabled: f.Enabled, Reason: ReasonStaticDefault}
	if !f.Enabled {
		res.Reason = ReasonFlagDisabled
		return res, nil
	}
	res.Params = f.Params
	return res, nil
}

// IsEnabled reports whether the flag resolves to enabled for the participant.
func (r *Resolver) IsEnabled(ctx context.Context, flag, participantID string) (bool, error) {
	res, err := r.Resolve(ctx, flag, participantID)
	if err != nil {
		return false, err
	}
	return res.Enabled, nil
}

func fromVariant(flag string, exp *experiment.Experiment, v experiment.Variant, reason Reason) Resolution {
	return Resolution{
		Flag:         flag,
		Enabled:      true,
		ExperimentID: exp.ID,
		VariantID:    v.ID,
		Params:       maps.Clone(v.Params),
		Reason:       reason,
	}
}
