package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shellwecode/window-to-the-world-app/config"
	"github.com/Shellwecode/window-to-the-world-app/internal/api"
	"github.com/Shellwecode/window-to-the-world-app/internal/cache"
	"github.com/Shellwecode/window-to-the-world-app/internal/citylist"
	"github.com/Shellwecode/window-to-the-world-app/internal/geocode"
	"github.com/Shellwecode/window-to-the-world-app/internal/mqtt"
	"github.com/Shellwecode/window-to-the-world-app/internal/scene"
	"github.com/Shellwecode/window-to-the-world-app/internal/scheduler"
	"github.com/Shellwecode/window-to-the-world-app/internal/storage"
	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "windowworld",
		Short: "Window to the World weather widget backend",
		Long:  "Serves city weather snapshots and stylized window scenes for the desktop widget",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(citiesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func retryPolicy(cfg config.WeatherConfig) weather.RetryPolicy {
	policy := weather.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RateLimitWait > 0 {
		policy.RateLimitWait = cfg.RateLimitWait
	}
	if cfg.BackoffBase > 0 {
		policy.BackoffBase = cfg.BackoffBase
	}
	return policy
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the widget backend",
		Long:  "Start the API server, refresh scheduler, and MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.Log, verbose)

			// Create database
			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			logger.Info("database opened", "path", cfg.Database.Path)

			store := citylist.NewStore(db, logger)
			manager := citylist.NewManager(store, logger)

			provider := weather.NewOpenMeteoClient(cfg.Weather.BaseURL, retryPolicy(cfg.Weather), logger)
			geocoder := geocode.NewClient(cfg.Geocode.BaseURL, logger)
			manifests := scene.NewManifests(cfg.Scene.IllustrationBaseURL, cfg.Scene.ManifestRetryAfter, logger)
			scenes := scene.NewBuilder(manifests)

			// Create MQTT publisher
			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
				Logger:      logger,
			})
			if err != nil {
				logger.Warn("mqtt connection failed", "error", err)
				publisher = nil
			} else if cfg.MQTT.Enabled {
				logger.Info("mqtt connected", "broker", cfg.MQTT.Broker)
				if err := publisher.PublishDiscovery(manager.Cities()); err != nil {
					logger.Warn("mqtt discovery failed", "error", err)
				}
			}

			coord := cache.NewCoordinator(cache.Config{
				Provider: provider,
				Logger:   logger,
				Jitter:   cfg.Refresh.Jitter,
				Notify: func(city citylist.City, snap weather.Snapshot) {
					if publisher == nil {
						return
					}
					if err := publisher.PublishSnapshot(city, snap); err != nil {
						logger.Warn("mqtt publish failed", "city", city.ID, "error", err)
					}
				},
			})

			// Setup context for graceful shutdown
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// List edits reconcile the cache; the initial load prefetches
			// everything already saved.
			manager.SetOnChange(func(cities []citylist.City) {
				coord.SetCities(ctx, cities)
				if publisher != nil {
					if err := publisher.PublishDiscovery(cities); err != nil {
						logger.Warn("mqtt discovery failed", "error", err)
					}
				}
			})
			coord.SetCities(ctx, manager.Cities())

			sched := scheduler.New(coord, cfg.Refresh.Interval, logger)
			if err := sched.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			// Handle signals
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:     cfg.API.Port,
					WebPath:  cfg.API.WebPath,
					Manager:  manager,
					Cache:    coord,
					Geocoder: geocoder,
					Scenes:   scenes,
					Logger:   logger,
				})

				go func() {
					if err := server.Start(); err != nil {
						logger.Error("API server error", "error", err)
					}
				}()
			}

			logger.Info("window to the world started, press Ctrl+C to stop")

			// Wait for signal
			<-sigChan
			logger.Info("shutting down")
			cancel()
			sched.Stop()

			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := server.Stop(shutdownCtx); err != nil {
					logger.Error("API server shutdown failed", "error", err)
				}
			}
			if publisher != nil {
				publisher.Close()
			}
			if err := db.Close(); err != nil {
				logger.Error("database close failed", "error", err)
			}

			return nil
		},
	}
}

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <query>",
		Short: "Search for a city and fetch its weather once",
		Long:  "Resolve the best match for the query, fetch its current weather, and print the snapshot with its window scene",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.Log, verbose)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			query := strings.Join(args, " ")
			matches := geocode.NewClient(cfg.Geocode.BaseURL, logger).Search(ctx, query)
			if len(matches) == 0 {
				return fmt.Errorf("no city found for %q", query)
			}
			city := matches[0]

			provider := weather.NewOpenMeteoClient(cfg.Weather.BaseURL, retryPolicy(cfg.Weather), logger)
			snap, err := provider.Current(ctx, weather.Location{
				Latitude:  city.Latitude,
				Longitude: city.Longitude,
				Timezone:  city.Timezone,
			})
			if err != nil {
				return fmt.Errorf("failed to fetch weather: %w", err)
			}

			manifests := scene.NewManifests(cfg.Scene.IllustrationBaseURL, cfg.Scene.ManifestRetryAfter, logger)
			view := scene.NewBuilder(manifests).Detail(ctx, city.ID, snap)

			output, _ := json.MarshalIndent(map[string]interface{}{
				"city":     city,
				"snapshot": snap,
				"scene":    view,
			}, "", "  ")
			fmt.Println(string(output))

			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the city directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.Log, verbose)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			query := strings.Join(args, " ")
			matches := geocode.NewClient(cfg.Geocode.BaseURL, logger).Search(ctx, query)
			if len(matches) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			for _, city := range matches {
				fmt.Printf("  %-12s %s, %s  (%.2f, %.2f)  %s\n",
					city.ID, city.Name, city.Country, city.Latitude, city.Longitude, city.Timezone)
			}

			return nil
		},
	}
}

func citiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cities",
		Short: "Print the saved city list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.Log, verbose)

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			manager := citylist.NewManager(citylist.NewStore(db, logger), logger)

			selectedID := ""
			if selected, ok := manager.Selected(); ok {
				selectedID = selected.ID
			}

			for _, city := range manager.Cities() {
				marker := " "
				if city.ID == selectedID {
					marker = "*"
				}
				fmt.Printf("%s %-12s %s, %s  (%.2f, %.2f)  %s\n",
					marker, city.ID, city.Name, city.Country, city.Latitude, city.Longitude, city.Timezone)
			}

			return nil
		},
	}
}
