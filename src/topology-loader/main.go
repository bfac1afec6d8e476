package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jack-barr3tt/tcs-engine/src/common/circuit"
	"github.com/jack-barr3tt/tcs-engine/src/common/data"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"github.com/jack-barr3tt/tcs-engine/src/common/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// validate builds a throwaway registry, which checks every link and alternative
// route.
func validate(topo *types.Topology) error {
	_, err := circuit.NewRegistryFromTopology(*topo)
	return err
}

func loadFile(ctx context.Context, dc *data.DataClient, path string, log *zap.SugaredLogger) error {
	topo, err := utils.ReadTopologyFile(path)
	if err != nil {
		return err
	}
	if topo.Name == "" {
		topo.Name = filepath.Base(path[:len(path)-len(filepath.Ext(path))])
	}

	if err := validate(topo); err != nil {
		for _, e := range multierr.Errors(err) {
			log.Errorw("topology problem", "route", topo.Name, "error", e)
		}
		return fmt.Errorf("route %s is invalid: %w", topo.Name, err)
	}

	if err := dc.WriteTopology(ctx, topo); err != nil {
		return fmt.Errorf("failed to write route %s: %w", topo.Name, err)
	}
	log.Infow("route loaded", "route", topo.Name, "sections", len(topo.Sections), "alternatives", len(topo.Alternatives))
	return nil
}

func main() {
	utils.InitLogger()
	defer utils.SyncLogger()
	log := utils.GetLogger()
	ctx := context.Background()

	files := os.Args[1:]
	if len(files) == 0 {
		if f := os.Getenv("TOPOLOGY_FILE"); f != "" {
			files = []string{f}
		}
	}
	if len(files) == 0 {
		log.Fatal("usage: topology-loader <route.json>... (or set TOPOLOGY_FILE)")
	}

	pg, err := utils.NewPostgresConnection()
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pg.Close()

	dc := data.NewDataClient(pg, nil, log)
	if err := dc.EnsureSchema(ctx); err != nil {
		log.Fatalw("failed to create schema", "error", err)
	}

	var errs error
	for _, f := range files {
		if err := loadFile(ctx, dc, f, log); err != nil {
			log.Errorw("failed to load route", "file", f, "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		utils.SyncLogger()
		os.Exit(1)
	}
}
