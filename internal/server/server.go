package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/bootstrap"
	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	mid "github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/internal/storage"
	"github.com/OFFIS-RIT/amphora/backend/internal/util"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	pgxstore "github.com/OFFIS-RIT/amphora/backend/pkg/store/pgx"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance serving the curation API for app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	if util.GetEnvBool("MIGRATE", false) {
		if err := pgxstore.Migrate(databaseURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
	}

	conn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	g, err := bootstrap.NewGraphClient(pgxstore.NewGraphDBStorageWithConnection(conn), nil)
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}
	if err := bootstrap.Vocabulary(ctx, g); err != nil {
		logger.Fatal("Failed to bootstrap vocabulary", "err", err)
	}

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	app := &mid.App{
		Graph:          g,
		Queue:          ch,
		ExportBucket:   util.GetEnv("EXPORT_BUCKET"),
		ExportPrefix:   util.GetEnv("EXPORT_PREFIX"),
		PublicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   util.GetEnv("MASTER_USER_ID"),
		MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	}

	if app.ExportBucket != "" {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		app.S3 = client
	}

	e := New(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
