package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/kiliankoe/chainrelay/internal/api"
    "github.com/kiliankoe/chainrelay/internal/config"
    "github.com/kiliankoe/chainrelay/internal/game"
    "github.com/kiliankoe/chainrelay/internal/storage/sqlite"
    "github.com/kiliankoe/chainrelay/internal/ws"
    "github.com/rs/zerolog"
    zerologlog "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"
    "github.com/spf13/pflag"
    "golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type flags struct {
    port   string
    dbPath string
    export string
}

func newCmd() *cobra.Command {
    f := &flags{}
    cmd := &cobra.Command{
        Use:           "chainrelay",
        Short:         "Session coordinator for the chain relay drawing game.",
        Args:          cobra.ExactArgs(0),
        SilenceErrors: true,
        SilenceUsage:  true,
        Version:       version,
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := config.FromEnv()
            if err != nil {
                return err
            }
            f.apply(&cfg)
            ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
            defer stop()
            return serve(ctx, cfg)
        },
    }

    fs := cmd.Flags()
    fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
        return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
    })
    fs.StringVarP(&f.port, "port", "p", "", "port to listen on (env: PORT)")
    fs.StringVar(&f.dbPath, "db", "", "path to the sqlite archive (env: CHAINRELAY_DB_PATH)")
    fs.StringVar(&f.export, "export-file", "", "append plain-text results to this file (env: CHAINRELAY_EXPORT_FILE)")

    cmd.SetVersionTemplate("chainrelay {{.Version}}\n")
    return cmd
}

// apply lets explicit flags win over the environment.
func (f *flags) apply(cfg *config.Config) {
    if f.port != "" {
        cfg.Port = f.port
    }
    if f.dbPath != "" {
        cfg.DBPath = f.dbPath
    }
    if f.export != "" {
        cfg.ExportEnabled = true
        cfg.ExportFile = f.export
    }
}

func serve(ctx context.Context, cfg config.Config) error {
    level, err := zerolog.ParseLevel(cfg.LogLevel)
    if err != nil {
        return fmt.Errorf("parse log level: %w", err)
    }
    zerolog.SetGlobalLevel(level)
    logger := zerologlog.Logger

    store, err := sqlite.Open(cfg.DBPath)
    if err != nil {
        return err
    }
    defer func() {
        if err := store.Close(); err != nil {
            logger.Warn().Err(err).Msg("closing store")
        }
    }()

    archivers := game.Archivers{store}
    if cfg.ExportEnabled {
        archivers = append(archivers, &game.FileExporter{Path: cfg.ExportFile})
    }

    reg := ws.NewRegistry(logger.With().Str("component", "registry").Logger())
    gm := game.NewManager(cfg.Game,
        game.WithDispatcher(reg),
        game.WithArchiver(archivers),
        game.WithLogger(logger.With().Str("component", "game").Logger()),
    )
    defer gm.Close()

    r := newRouter(logger)
    sock := ws.New(gm, reg)
    io := sock.Mount(r)
    defer io.Close()
    r.GET("/ws", sock.ServeWS)

    h := &api.Handler{
        Games:    gm,
        Results:  store,
        Presence: reg,
        BaseURL:  cfg.PublicURL,
        Log:      logger,
    }
    h.Register(r)

    srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        logger.Info().Str("addr", srv.Addr).Str("db", cfg.DBPath).Msg("listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    g.Go(func() error {
        return gm.RunReaper(gctx)
    })
    g.Go(func() error {
        <-gctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
        defer cancel()
        logger.Info().Msg("shutting down")
        return srv.Shutdown(shutdownCtx)
    })

    if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
        return err
    }
    return nil
}

func newRouter(logger zerolog.Logger) *gin.Engine {
    // Gin setup with custom logger (skip /socket.io noise)
    gin.SetMode(gin.ReleaseMode)
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context) {
        start := time.Now()
        c.Next()
        path := c.Request.URL.Path
        if strings.HasPrefix(path, "/socket.io") {
            return
        }
        logger.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
    })

    // Healthcheck
    r.GET("/health", func(c *gin.Context) {
        c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
    })
    return r
}
