package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohowland/holarchy/internal/pkg/database/mongodb"
	"github.com/ohowland/holarchy/internal/pkg/database/sqldb"
	"github.com/ohowland/holarchy/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/holarchy/internal/pkg/metrics"
	"github.com/ohowland/holarchy/internal/pkg/simulation"
	"github.com/ohowland/holarchy/internal/pkg/snapshot"
	"github.com/ohowland/holarchy/internal/pkg/web"
	"github.com/ohowland/holarchy/internal/pkg/webservice"
)

const (
	simulationConfig = "./config/simulation.json"
	webserviceConfig = "./config/webservice.json"
	narratorConfig   = "./config/narrator.json"
	natsConfig       = "./config/nats.json"
	sqlConfig        = "./config/database/sqldb.json"
	mongoConfig      = "./config/database/mongodb.json"
)

func main() {
	log.Println("[Main] Starting Holarchy v0.1.0")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[Main] Building Simulation")
	sim, err := simulation.New(simulationConfig)
	if err != nil {
		panic(err)
	}
	defer sim.Close()

	log.Println("[Main] Attaching Metrics")
	reg := metrics.NewRegistry()
	if err := reg.Subscribe(sim); err != nil {
		panic(err)
	}
	defer reg.Stop()

	if exists(natsConfig) {
		log.Println("[Main] Connecting NATS Stream")
		if stream, err := linkNats(sim); err != nil {
			log.Println("[Main] NATS unavailable:", err)
		} else {
			defer stream.Stop()
		}
	}

	log.Println("[Main] Opening Snapshot Store")
	store, closeStore := openStore()
	defer closeStore()

	app := &webservice.App{
		Sim:      sim,
		Store:    store,
		Gatherer: reg.GetPrometheusRegistry(),
	}
	if exists(narratorConfig) {
		narrator, err := web.New(narratorConfig)
		if err != nil {
			log.Println("[Main] narrator disabled:", err)
		} else {
			app.Narrator = narrator
		}
	}

	log.Println("[Main] Starting Webservice")
	app.Config, err = webservice.NewConfig(webserviceConfig)
	if err != nil {
		panic(err)
	}
	server := app.NewServer()
	go func() {
		log.Println("[Main] Listening on", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("[Main] webservice:", err)
		}
	}()

	sim.Start()
	<-sigs

	log.Println("[Main] Stopping system")
	sim.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Println("[Main] webservice shutdown:", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func linkNats(sim *simulation.Controller) (*natshandler.Handler, error) {
	stream, err := natshandler.New(natsConfig, sim)
	if err != nil {
		return nil, err
	}
	if err := stream.Connect(); err != nil {
		stream.Stop()
		return nil, err
	}
	return stream, nil
}

// openStore prefers the SQL store, then MongoDB, then process memory.
func openStore() (snapshot.Store, func()) {
	if exists(sqlConfig) {
		store, err := sqldb.New(sqlConfig)
		if err == nil {
			return store, func() { store.Close() }
		}
		log.Println("[Main] sql store unavailable:", err)
	}
	if exists(mongoConfig) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := mongodb.New(ctx, mongoConfig)
		if err == nil {
			return store, func() { store.Close(context.Background()) }
		}
		log.Println("[Main] mongo store unavailable:", err)
	}
	log.Println("[Main] keeping snapshots in memory")
	return snapshot.NewMemoryStore(), func() {}
}
