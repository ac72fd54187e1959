// Package server initializes and runs the KeyWarden server: it opens the
// database, runs migrations, wires the services, and drives the HTTP endpoint
// and the background sweep loop until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/keyring"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/config"
	"github.com/dmitrijs2005/keywarden/internal/server/httpapi"
	"github.com/dmitrijs2005/keywarden/internal/server/metrics"
	"github.com/dmitrijs2005/keywarden/internal/server/notify"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keywarden/internal/server/services"
	"github.com/dmitrijs2005/keywarden/internal/server/storage"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	keys      *keyring.Keyring
	handler   http.Handler
	emergency *services.EmergencyService
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	metrics.Register(nil)

	keys := keyring.New(c.AccessTokenValidityDuration)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if c.SMTPHost != "" {
		notifier = notify.NewSMTPNotifier(c.SMTPHost, c.SMTPPort, c.SMTPFrom, c.SMTPUser, c.SMTPPassword)
	}

	var signer storage.BlobSigner
	if c.S3Bucket != "" {
		signer = storage.NewS3Signer(c.S3RootUser, c.S3RootPassword, c.S3Bucket, c.S3Region, c.S3BaseEndpoint)
	}

	secretKey := []byte(c.SecretKey)

	activity := services.NewActivityService(db, rm)
	ownerSvc := services.NewOwnerService(db, rm, keys, activity, logger, secretKey,
		c.AccessTokenValidityDuration, c.DefaultInactivityThreshold, c.DefaultWaitingPeriod)
	recordSvc := services.NewRecordService(db, rm, keys, signer, logger)
	escrowSvc := services.NewEscrowService(db, rm, keys, logger)
	grants := services.NewGrantService(db, rm, signer, logger, c.GrantWindow)
	ledger := services.NewLedger(rm)
	emergency := services.NewEmergencyService(db, rm, ledger, grants, notifier, logger, c.DeliveryTimeout)
	contactSvc := services.NewContactService(db, rm, emergency, notifier, logger, secretKey,
		c.AccessTokenValidityDuration, c.DeliveryTimeout)

	handler := httpapi.NewServer(ownerSvc, recordSvc, contactSvc, escrowSvc, emergency, activity,
		logger, secretKey).Routes()

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		keys:      keys,
		handler:   handler,
		emergency: emergency,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runSweepLoop periodically evaluates waiting requests. Loop errors are
// logged and the loop keeps going; a missed sweep is retried on the next tick.
func (app *App) runSweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			resolved, err := app.emergency.Sweep(ctx, time.Now())
			if err != nil {
				app.logger.Error(ctx, "sweep failed", "error", err.Error())
				continue
			}
			if resolved > 0 {
				app.logger.Info(ctx, "sweep resolved requests", "count", resolved)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{Addr: app.config.EndpointAddr, Handler: app.handler}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return app.runSweepLoop(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	// wipe every session key before the process exits
	app.keys.Close()
	if closeErr := app.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	app.logger.Info(ctx, "server stopped")
	return err
}
