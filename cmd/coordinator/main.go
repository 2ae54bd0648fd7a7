// Command coordinator is the Master or Child coordinator of spec.md §4.1
// and §4.2, selected by the --runner flag: without it, this process is the
// Master; with it, a Child that spawns and owns exactly one Region Worker
// process per scene.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mwindels/steadyum-go/internal/child"
	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/httpapi"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/master"
	"github.com/mwindels/steadyum-go/internal/transport"
)

func main() {
	runAsChild := flag.Bool("runner", false, "run as a Child coordinator")
	dev := flag.Bool("dev", false, "single-host dev mode: peer transport, no child registration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("coordinator: load config: %v", err)
	}

	if *runAsChild {
		runChild(cfg, *dev)
		return
	}
	runMaster(cfg)
}

func runMaster(cfg config.Config) {
	logger := log.New(os.Stderr, "[master] ", log.LstdFlags)

	client := httpapi.NewClient()
	m := master.New(client)
	srv := httpapi.NewMasterServer(m, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Printf("master listening on %s", cfg.HTTPAddr)
	serveHTTP(ctx, logger, cfg.HTTPAddr, srv.NewRouter())
}

func runChild(cfg config.Config, dev bool) {
	logger := log.New(os.Stderr, "[child] ", log.LstdFlags)

	node := transport.NewNode(nil)
	httpClient := httpapi.NewClient()
	masterAddr := net.JoinHostPort(cfg.PartitionnerAddr, strconv.Itoa(cfg.PartitionnerPort))

	resolve := func(ctx context.Context, scene ids.SceneID, region geom.RegionBounds) (string, ids.WorkerID, error) {
		return httpClient.AssignRunner(ctx, masterAddr, scene, region)
	}
	ackParent := func(ctx context.Context, scene ids.SceneID) error {
		return httpClient.AckParent(ctx, masterAddr, scene)
	}

	c := child.New(cfg, node,
		child.ExecSpawner{RunnerExe: cfg.RunnerExe, ParentAddr: cfg.HTTPAddr, Dev: dev},
		resolve, ackParent,
	)
	srv := httpapi.NewChildServer(c)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !dev {
		childAddr, portStr, err := net.SplitHostPort(cfg.HTTPAddr)
		if err != nil {
			logger.Fatalf("parse HTTP_ADDR %q: %v", cfg.HTTPAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logger.Fatalf("parse HTTP_ADDR port %q: %v", portStr, err)
		}
		if err := httpClient.RegisterChild(ctx, masterAddr, childAddr, port); err != nil {
			logger.Fatalf("register with master %s: %v", masterAddr, err)
		}
		logger.Printf("registered with master at %s", masterAddr)
	} else {
		logger.Printf("dev mode: skipping master registration")
	}

	logger.Printf("child listening on %s", cfg.HTTPAddr)
	serveHTTP(ctx, logger, cfg.HTTPAddr, srv.NewRouter())
}

func serveHTTP(ctx context.Context, logger *log.Logger, addr string, handler http.Handler) {
	server := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serve %s: %v", addr, err)
	}
}
