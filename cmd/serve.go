package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/coach"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/config"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/db"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/engine"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/events"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/llm"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/play"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/server"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/sessionstore"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the arena server",
	Long:  `Starts the arena HTTP server: scenario content, play sessions, coaching, and the audit trail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		dbPath := filepath.Join(cfg.DataDir, "arena.db")
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
		if err != nil {
			return fmt.Errorf("creating LLM provider: %w", err)
		}
		if cfg.CoachRequestsPerMin > 0 {
			provider = llm.NewRateLimitedProvider(provider, cfg.CoachRequestsPerMin)
		}

		contentStore := content.NewStore(database)
		sessions := sessionstore.NewStore(database)
		reflections := sessionstore.NewReflectionLog(database)
		eventStore := events.NewStore(database)
		coachingLog := events.NewCoachingLog(database)

		eng := engine.New(contentStore, sessions, reflections, eventStore,
			time.Duration(cfg.AutosaveDebounceMS)*time.Millisecond)
		defer eng.Close()

		ch := coach.New(provider, cfg.Model,
			time.Duration(cfg.CoachTimeoutSecs)*time.Second,
			coach.NewFallbackDeck(time.Now().UnixNano()), coachingLog)

		svc := play.NewService(eng, ch, contentStore, sessions)

		srv := server.New(server.Config{
			Port:     cfg.Port,
			DataDir:  cfg.DataDir,
			AllowAll: cfg.AllowAllOrigins,
		}, database)

		r := srv.Router()
		content.RegisterRoutes(r, contentStore)
		play.RegisterRoutes(r, svc)
		events.RegisterRoutes(r, eventStore, coachingLog)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		fmt.Fprintf(os.Stderr, "arena server v%s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  Provider: %s (%s)\n", provider.Name(), cfg.Model)

		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8787, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}
