package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/konekte/seminar-registration/api"
	"github.com/konekte/seminar-registration/dynamo"
	"github.com/konekte/seminar-registration/payments"
	"github.com/konekte/seminar-registration/payments/bazik"
	"github.com/konekte/seminar-registration/postgres"
	"github.com/konekte/seminar-registration/seminar"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/idtoken"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverSettings, err := getServerSettingsFromEnv()
	if err != nil {
		return err
	}

	shutdownTracing, err := setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	env := api.LOCAL
	if serverSettings.isProd() {
		env = api.PROD
	}

	var awsCfg aws.Config
	if serverSettings.isProd() || serverSettings.StoreDriver == "dynamo" {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to get aws config: %w", err)
		}
	}

	if serverSettings.isProd() {
		if err := loadBazikSecretsFromSSM(ctx, ssm.NewFromConfig(awsCfg), &serverSettings); err != nil {
			return err
		}
	}

	db, closeDB, err := makeDB(ctx, serverSettings, awsCfg)
	if err != nil {
		return err
	}
	defer closeDB()

	sem, err := seminar.New(
		serverSettings.SeminarName,
		payments.FromMajorUnits(serverSettings.SeminarPrice, serverSettings.SeminarCurrency),
		serverSettings.SeminarCapacity,
	)
	if err != nil {
		return err
	}

	gateway := bazik.NewClient(bazik.Config{
		BaseURL:       serverSettings.BazikBaseURL,
		UserID:        serverSettings.BazikUserID,
		APIKey:        serverSettings.BazikAPIKey,
		WebhookSecret: serverSettings.BazikWebhookSecret,
		Timeout:       serverSettings.ProviderTimeout,
	}, logger)

	authorizer, err := makeAuthorizer(ctx, serverSettings)
	if err != nil {
		return err
	}

	seminarAPI := api.NewAPI(db, gateway, sem, serverSettings.PublicBaseURL, logger, env, authorizer)
	h, err := seminarAPI.Handler()
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	s := &http.Server{
		Handler: otelhttp.NewHandler(h, serviceName),
		Addr:    net.JoinHostPort(serverSettings.Host, serverSettings.Port),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", s.Addr), slog.String("env", serverSettings.Env), slog.String("store", serverSettings.StoreDriver))
		serveErr <- s.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverSettings.ShutdownDeadline)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}

func makeDB(ctx context.Context, settings ServerSettings, awsCfg aws.Config) (api.DB, func(), error) {
	switch settings.StoreDriver {
	case "dynamo":
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if settings.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(settings.DynamoEndpoint)
			}
		})
		return dynamo.NewDB(client, settings.DynamoTable), func() {}, nil
	case "postgres":
		db, err := postgres.Connect(ctx, settings.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", settings.StoreDriver)
	}
}

func makeAuthorizer(ctx context.Context, settings ServerSettings) (api.Authorizer, error) {
	if settings.AdminAudience == "" && !settings.isProd() {
		return api.LocalAuthorizer{}, nil
	}

	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create google id token validator: %w", err)
	}

	return api.NewGoogleAdminAuthorizer(validator, settings.AdminAudience, settings.AdminDomain), nil
}
