package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/config"
	"civilizace.org/internal/entities"
	"civilizace.org/internal/persistence"
	"civilizace.org/internal/server"
	"civilizace.org/internal/state"
	"civilizace.org/pkg/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to config file")
		entitiesRev = flag.Int("entities_rev", 1, "entity catalog revision number")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.New("info", "text").Fatalf("load config: %v", err)
		}
		cfg = config.Config{}
		cfg.ApplyDefaults()
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ents, err := entities.Load(cfg.EntitySet, *entitiesRev)
	if err != nil {
		log.WithError(err).Fatal("load entity catalog")
	}
	log.WithFields(map[string]any{
		"revision": ents.Revision,
		"digest":   ents.Digest,
		"teams":    len(ents.Teams),
		"tiles":    ents.TileCount(),
	}).Info("entity catalog loaded")

	store, err := persistence.Open(filepath.Join(cfg.DataDir, "game.db"))
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer store.Close()

	revision, storedRev, st, err := store.LatestRevision()
	switch {
	case errors.Is(err, persistence.ErrNoRevision):
		st = state.New(ents)
		applyGameConfig(st, cfg.Game)
		revision, err = store.SaveRevision(ents.Revision, st)
		if err != nil {
			log.WithError(err).Fatal("persist initial state")
		}
		log.WithField("revision", revision).Info("fresh game initialized")
	case err != nil:
		log.WithError(err).Fatal("load latest state")
	default:
		if storedRev != ents.Revision {
			log.WithFields(map[string]any{
				"stored": storedRev, "loaded": ents.Revision,
			}).Warn("state was written against a different catalog revision")
		}
		log.WithFields(map[string]any{
			"revision": revision, "turn": st.World.Turn,
		}).Info("resumed persisted state")
	}

	audit := persistence.NewAuditLogger(cfg.DataDir)
	defer audit.Close()

	srv := server.New(cfg, ents, st, revision, store, audit, log,
		func() int64 { return time.Now().Unix() })

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}()

	log.WithField("addr", cfg.ListenAddr).Info("listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("ListenAndServe")
	}
}

// applyGameConfig stamps config tunables onto a fresh state. Resumed states
// keep their persisted values; god-mode changes them at runtime.
func applyGameConfig(st *state.GameState, gc config.GameConfig) {
	if gc.CasteCount > 0 {
		st.World.CasteCount = gc.CasteCount
	}
	st.World.CombatRandomness = gc.CombatRandomness
	if len(gc.RoadCost) > 0 {
		cost := state.Amounts{}
		for id, raw := range gc.RoadCost {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				continue
			}
			cost[entities.EntityID(id)] = amount
		}
		st.World.RoadCost = cost
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
