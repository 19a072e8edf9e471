package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

// ErrAllFailed is returned when every provider in a [Chain] failed or had an
// open breaker.
var ErrAllFailed = errors.New("resilience: all stt providers failed")

type link struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// Chain implements [stt.Provider] over an ordered list of providers, each
// guarded by its own [Breaker]. Transcribe tries them in order and returns
// the first success.
type Chain struct {
	cfg   BreakerConfig
	links []link
}

var _ stt.Provider = (*Chain)(nil)

// NewChain creates a [Chain] with primary as the preferred provider. cfg is
// applied to every breaker; its Name is replaced by the provider name.
func NewChain(primary stt.Provider, name string, cfg BreakerConfig) *Chain {
	c := &Chain{cfg: cfg}
	c.Add(name, primary)
	return c
}

// Add appends a fallback provider. It must not be called concurrently with
// Transcribe.
func (c *Chain) Add(name string, p stt.Provider) {
	cfg := c.cfg
	cfg.Name = name
	c.links = append(c.links, link{name: name, provider: p, breaker: NewBreaker(cfg)})
}

// Len returns the number of providers in the chain.
func (c *Chain) Len() int { return len(c.links) }

// State returns the breaker state of the named provider.
func (c *Chain) State(name string) (State, bool) {
	for _, l := range c.links {
		if l.name == name {
			return l.breaker.State(), true
		}
	}
	return StateClosed, false
}

// Transcribe sends audio to the first healthy provider. An empty recording
// and a cancelled context are returned immediately without failing over.
func (c *Chain) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	var errs []error
	for _, l := range c.links {
		var tr stt.Transcript
		err := l.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			tr, err = l.provider.Transcribe(ctx, audio)
			return err
		}, isBackendFailure)
		if err == nil {
			return tr, nil
		}
		if !isBackendFailure(err) || ctx.Err() != nil {
			return stt.Transcript{}, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping stt provider, circuit open", "provider", l.name)
		} else {
			slog.Warn("stt provider failed, trying next", "provider", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	return stt.Transcript{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// Close closes every provider that holds resources.
func (c *Chain) Close() error {
	var errs []error
	for _, l := range c.links {
		if cl, ok := l.provider.(interface{ Close() error }); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func isBackendFailure(err error) bool {
	return !errors.Is(err, stt.ErrNoAudio) && !errors.Is(err, context.Canceled)
}
