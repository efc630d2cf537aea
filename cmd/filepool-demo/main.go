// Command filepool-demo wires a Worker Pool, a plugin resolver and the
// optional status dashboard together, and runs a single build-like pass
// over a directory of files.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kilnforge/filepool/pkg/config"
	"github.com/kilnforge/filepool/pkg/dashboard"
	"github.com/kilnforge/filepool/pkg/logging"
	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/plugin"
	"github.com/kilnforge/filepool/pkg/pool"
	"github.com/kilnforge/filepool/pkg/watch"
	"github.com/google/uuid"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a filepool JSON configuration file")
		moduleID   = flag.String("processor", "", "Module id of the file processor plugin to load")
		inputDir   = flag.String("input", ".", "Directory of files to process")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if *inputDir != "." {
		cfg.Cwd = *inputDir
	}

	baseLogger := logging.New(logging.Config{Level: cfg.LogLevel(), Format: cfg.LogFormat(), Component: "filepool"})

	var dash *dashboard.Dashboard
	p, err := pool.New(pool.Config{
		Cwd:         cfg.Cwd,
		Concurrency: cfg.Concurrency,
		Resolver:    &plugin.FileResolver{},
		OnWorkerError: func(err error) {
			baseLogger.Error(err, nil)
		},
	})
	if err != nil {
		log.Fatalf("failed to construct pool: %v", err)
	}
	defer p.Dispose()

	if cfg.Dashboard.Enabled {
		dash = dashboard.New(p)
		go func() {
			log.Printf("dashboard listening on %s", cfg.Dashboard.Addr)
			if err := http.ListenAndServe(cfg.Dashboard.Addr, dash.Handler()); err != nil {
				log.Printf("dashboard server stopped: %v", err)
			}
		}()
	}

	if *moduleID == "" {
		log.Fatal("-processor is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proc, name, err := p.ImportFileProcessor(ctx, pool.ImportRequest{ModuleID: *moduleID})
	if err != nil {
		log.Fatalf("failed to import processor: %v", err)
	}
	log.Printf("loaded processor %q", name)

	run := p.NewRun()
	run.Dev = cfg.Dev
	run.Debug = cfg.Debug
	run.Full = true
	run.Log = runLogger(baseLogger, dash, run.ID)
	if cfg.Dev {
		if err := populateChangedFiles(run, cfg.Cwd); err != nil {
			log.Printf("dev-mode change scan failed: %v", err)
		}
	}
	if err := run.Validate(); err != nil {
		log.Fatalf("invalid run: %v", err)
	}

	files, err := listFiles(cfg.Cwd)
	if err != nil {
		log.Fatalf("failed to list input files: %v", err)
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		rel, _ := filepath.Rel(cfg.Cwd, path)
		f := &model.File{Path: rel, Contents: model.NewBuffer(data)}

		results, err := proc(ctx, f, run)
		if err != nil {
			log.Printf("%s: %v", rel, err)
			continue
		}
		for res := range results {
			if res.Err != nil {
				log.Printf("%s: %v", rel, res.Err)
				continue
			}
			log.Printf("produced %s", res.File.Path)
		}
	}
}

func runLogger(base *logging.Logger, dash *dashboard.Dashboard, runID uuid.UUID) model.Logger {
	tagged := base.WithRun(runID)
	if dash == nil {
		return tagged
	}
	return dashboard.NewBroadcastLogger(tagged, dash, runID)
}

func populateChangedFiles(run *model.Run, cwd string) error {
	w, err := watch.New(watch.Config{Roots: []string{cwd}, Debounce: 200 * time.Millisecond})
	if err != nil {
		return err
	}
	defer w.Close()

	select {
	case batch := <-w.Batches():
		run.ChangedFiles = batch
	case <-time.After(500 * time.Millisecond):
	}
	return nil
}

func listFiles(root string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
