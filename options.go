package scriptx

import (
	"log/slog"

	"github.com/pkg/errors"
)

type Option interface {
	apply(m *Migrator) error
}

type optionFn func(m *Migrator) error

func (f optionFn) apply(m *Migrator) error {
	return f(m)
}

// WithCatalog sets the source of scripts. It is loaded once per run, after the lock is held.
func WithCatalog(c Catalog) Option {
	return optionFn(func(m *Migrator) error {
		if c == nil {
			return errors.New("nil catalog")
		}
		m.catalog = c
		return nil
	})
}

// WithDirectory reads <version>__<description>.sql scripts from dir
func WithDirectory(dir string) Option {
	return WithCatalog(Dir(dir))
}

// WithScripts uses a fixed list of scripts
func WithScripts(scripts ...Script) Option {
	return WithCatalog(Scripts(scripts...))
}

// WithMaxAttempts sets how often a failing script is tried before it is marked failed
func WithMaxAttempts(n int) Option {
	return optionFn(func(m *Migrator) error {
		if n < 1 {
			return errors.Errorf("max attempts must be at least 1, got %d", n)
		}
		m.maxAttempts = n
		return nil
	})
}

func WithPolicy(p Policy) Option {
	return optionFn(func(m *Migrator) error {
		if p == nil {
			return errors.New("nil failure policy")
		}
		m.policy = p
		return nil
	})
}

// WithObserver replaces the default log observer. nil silences the run.
func WithObserver(o Observer) Option {
	return optionFn(func(m *Migrator) error {
		if o == nil {
			o = NopObserver{}
		}
		m.observer = o
		return nil
	})
}

// WithLogger reports run events to logger
func WithLogger(logger *slog.Logger) Option {
	return WithObserver(LogObserver(logger))
}
