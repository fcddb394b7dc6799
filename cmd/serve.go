package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/cspgen/internal/api"
	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cspgen as a REST API service with a CSP violation report endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		addr, _ := cmd.Flags().GetString("addr")
		root, _ := cmd.Flags().GetString("root")
		host, _ := cmd.Flags().GetString("host")
		authToken, _ := cmd.Flags().GetString("auth-token")
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")
		proxies, _ := cmd.Flags().GetStringSlice("trusted-proxies")

		req, err := readPolicyFlags(cmd)
		if err != nil {
			return err
		}
		opts, err := readScanOptions(cmd)
		if err != nil {
			return err
		}

		trustedProxies, err := api.ParseTrustedProxies(proxies)
		if err != nil {
			return err
		}

		if root != "" {
			if isDir, err := afero.IsDir(appCtx.Fs, root); err != nil || !isDir {
				return fmt.Errorf("--root %s is not a readable directory", root)
			}
		}
		if authToken == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s No --auth-token set; the API is open to anyone who can reach %s\n", colorWarn("!"), addr)
		}

		// Initialize structured logger
		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() {
			if err := logger.Sync(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
			}
		}()

		server := api.NewServer(api.Config{
			CSP:            appCtx.Services.CSPService,
			Health:         &healthAPIService{appCtx: appCtx},
			AuthToken:      authToken,
			Logger:         logger,
			RootDir:        root,
			DefaultHost:    host,
			Malformed:      opts.Malformed,
			StrictSources:  req.StrictSources,
			ReportURI:      req.ReportURI,
			ViolationLimit: consts.DefaultViolationLimit,
			CORSOrigins:    corsOrigins,
			RateLimit:      rateLimit,
			RateBurst:      rateBurst,
			TrustedProxies: trustedProxies,
		})
		defer server.Close()

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       120 * time.Second,
		}

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		// Start server in a goroutine
		go func() {
			fmt.Printf("%s API server listening on %s (data dir: %s)\n", colorInfo("→"), addr, appCtx.DataDir)
			fmt.Printf("%s Violation reports accepted at %s\n", colorInfo("→"), req.ReportURI)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		// Channel to listen for interrupt signals
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		// Block until we receive a signal or an error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			// Create context with timeout for shutdown
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			// Attempt graceful shutdown
			if err := httpServer.Shutdown(ctx); err != nil {
				// Force close if graceful shutdown fails
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}

			fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
		}

		return nil
	},
}

type healthAPIService struct {
	appCtx *AppContext
}

func (s *healthAPIService) Check(ctx context.Context) error {
	return nil
}

// Ready reports whether the data directory is still usable.
func (s *healthAPIService) Ready(ctx context.Context) error {
	isDir, err := afero.IsDir(s.appCtx.Fs, s.appCtx.DataDir)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	if !isDir {
		return fmt.Errorf("data directory %s is not a directory", s.appCtx.DataDir)
	}
	return nil
}

func init() {
	addScanFlags(serveCmd)
	serveCmd.Flags().String("report-uri", cliConfig.Policy.ReportURI, "report-uri placed in policies and served for violation reports")
	serveCmd.Flags().Bool("strict-sources", cliConfig.Policy.StrictSources, "drop approved sources that could break out of the directive")
	serveCmd.Flags().String("addr", cliConfig.Serve.Addr, "Address for the API server")
	serveCmd.Flags().String("root", cliConfig.Serve.Root, "only allow scans of directories under this root")
	serveCmd.Flags().String("auth-token", cliConfig.Serve.AuthToken, "Optional shared secret for API requests (X-Auth-Token)")
	serveCmd.Flags().Duration("shutdown-timeout", consts.ServerShutdownTimeout, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", cliConfig.Serve.RateLimit, "Requests per second per IP (0 = disabled)")
	serveCmd.Flags().Int("rate-burst", cliConfig.Serve.RateBurst, "Burst size for rate limiter")
	serveCmd.Flags().StringSlice("trusted-proxies", []string{}, "proxy addresses or CIDRs allowed to set X-Forwarded-For (empty = ignore the header)")
}
