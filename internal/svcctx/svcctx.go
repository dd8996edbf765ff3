// Package svcctx carries shared service handles through a context.Context so
// that HTTP endpoints and CLI commands can reach them without global state.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/easelhq/easel/internal/assets"
	"github.com/easelhq/easel/internal/batch"
	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/home"
	"github.com/easelhq/easel/internal/outline"
	"github.com/easelhq/easel/internal/providers"
	"github.com/easelhq/easel/internal/store"
)

type servicesKey struct{}

// Services bundles the long-lived dependencies wired at startup.
type Services struct {
	Store       store.Store
	Manager     *batch.Manager
	Registry    *providers.Registry
	Assets      assets.Store
	Synthesizer *outline.Synthesizer
	Config      *config.Manager
	Logger      *slog.Logger
	Home        *home.Dir
}

// WithServices returns a context carrying the given services.
func WithServices(ctx context.Context, svcs *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, svcs)
}

// ServicesFrom extracts the services from ctx, or nil if absent.
func ServicesFrom(ctx context.Context) *Services {
	svcs, _ := ctx.Value(servicesKey{}).(*Services)
	return svcs
}

// StoreFrom returns the deck store from ctx, or nil.
func StoreFrom(ctx context.Context) store.Store {
	if svcs := ServicesFrom(ctx); svcs != nil {
		return svcs.Store
	}
	return nil
}

// ManagerFrom returns the batch manager from ctx, or nil.
func ManagerFrom(ctx context.Context) *batch.Manager {
	if svcs := ServicesFrom(ctx); svcs != nil {
		return svcs.Manager
	}
	return nil
}

// RegistryFrom returns the provider registry from ctx, or nil.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if svcs := ServicesFrom(ctx); svcs != nil {
		return svcs.Registry
	}
	return nil
}

// AssetsFrom returns the asset store from ctx, or nil.
func AssetsFrom(ctx context.Context) assets.Store {
	if svcs := ServicesFrom(ctx); svcs != nil {
		return svcs.Assets
	}
	return nil
}

// SynthesizerFrom returns the outline synthesizer from ctx, or nil.
func SynthesizerFrom(ctx context.Context) *outline.Synthesizer {
	if svcs := ServicesFrom(ctx); svcs != nil {
		return svcs.Synthesizer
	}
	return nil
}

// ConfigFrom returns the config manager from ctx, or nil.
func ConfigFrom(ctx context.Context) *config.Manager {
	if svcs := ServicesFrom(ctx); svcs != nil {
		return svcs.Config
	}
	return nil
}

// LoggerFrom returns the logger from ctx, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if svcs := ServicesFrom(ctx); svcs != nil && svcs.Logger != nil {
		return svcs.Logger
	}
	return slog.Default()
}

// HomeFrom returns the home directory from ctx, or nil.
func HomeFrom(ctx context.Context) *home.Dir {
	if svcs := ServicesFrom(ctx); svcs != nil {
		return svcs.Home
	}
	return nil
}
