package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/cspgen/internal/application"
)

// AppContext carries the shared runtime state every command needs.
type AppContext struct {
	Logger   *zap.SugaredLogger
	Fs       afero.Fs
	DataDir  string
	Config   *CLIConfig
	Services *application.Container
}

type appContextKey struct{}

var globalAppContext *AppContext

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if cmd != nil {
		if ctx := cmd.Context(); ctx != nil {
			if appCtx, ok := ctx.Value(appContextKey{}).(*AppContext); ok {
				return appCtx
			}
		}
	}
	return globalAppContext
}

func (a *AppContext) logger() *zap.SugaredLogger {
	if a == nil || a.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return a.Logger
}
