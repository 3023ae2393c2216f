package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-analyzer/internal/bluesky"
	"github.com/blackmichael/bluesky-analyzer/internal/domain"
	"github.com/blackmichael/bluesky-analyzer/internal/httpserver"
	"github.com/blackmichael/bluesky-analyzer/internal/sqlite"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored posts and their analysis over HTTP",
		Long: `Serve exposes the SQLite store over HTTP:

  GET  /health          liveness check
  GET  /posts           the stored posts table
  GET  /report          a fresh analysis of the stored table
  POST /report          analyze the stored table and save the report
  GET  /report/latest   the last saved report

With --refresh set to a cron spec (for example "@hourly"), the account's posts
are fetched again on that schedule and the store and saved report updated.
With --watch, new posts are also followed live on Jetstream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			if a.cfg.Refresh != "" {
				c, err := a.scheduleRefresh(repo)
				if err != nil {
					return err
				}
				c.Start()
				defer func() { <-c.Stop().Done() }()
			}

			var wg sync.WaitGroup
			defer wg.Wait()
			if watch {
				did, err := a.resolveDID(ctx, cmd)
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := a.watch(ctx, did, repo); err != nil {
						a.logger.Error("firehose subscriber exited with error", "error", err)
					}
				}()
			}

			server := httpserver.NewServer(a.cfg, domain.NewService(nil, repo, a.logger), repo, a.logger)
			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				a.logger.Info("shutting down")
			case err := <-errCh:
				stop()
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("error shutting down http server", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().Int("port", 3000, "HTTP port")
	cmd.Flags().String("refresh", "", `cron spec for re-fetching the account's posts (e.g. "@hourly")`)
	cmd.Flags().BoolVar(&watch, "watch", false, "also follow new posts on Jetstream")
	cmd.Flags().String("did", "", "DID of the account to watch (skips login)")
	cmd.Flags().String("firehose-url", "wss://jetstream1.us-east.bsky.network/subscribe", "Jetstream subscribe endpoint")
	return cmd
}

// scheduleRefresh registers the refresh job. Each run logs in again, since
// sessions expire between runs.
func (a *app) scheduleRefresh(repo *sqlite.Repository) (*cron.Cron, error) {
	if a.cfg.Handle == "" || a.cfg.Password == "" {
		return nil, errors.New("refresh requires handle and password to be configured")
	}

	c := cron.New()
	_, err := c.AddFunc(a.cfg.Refresh, func() {
		ctx := context.Background()
		client := bluesky.NewClient(a.cfg.PDS)
		session, err := bluesky.Authenticate(ctx, client, a.cfg.Handle, a.cfg.Password, a.logger)
		if err != nil {
			a.logger.Error("refresh login failed", "error", err)
			return
		}
		fetcher := bluesky.NewFetcher(client, session, a.cfg.PageDelay, a.logger)
		id, err := domain.NewService(fetcher, repo, a.logger).Refresh(ctx)
		if err != nil {
			a.logger.Error("refresh failed", "error", err)
			return
		}
		a.logger.Info("refreshed stored posts", "report_id", id)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", a.cfg.Refresh, err)
	}
	a.logger.Info("scheduled refresh", "spec", a.cfg.Refresh)
	return c, nil
}
