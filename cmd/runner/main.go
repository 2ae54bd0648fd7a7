// Command runner is the Region Worker process of spec.md §4.3: it hosts
// every Region Simulator for one (scene, host) pair and answers its parent
// Child coordinator's command queue and watch/client-object queries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/httpapi"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/physics"
	"github.com/mwindels/steadyum-go/internal/worker"
)

func main() {
	uuidFlag := flag.String("uuid", "", "this runner's Worker uuid")
	sceneFlag := flag.String("scene-uuid", "", "the scene this runner serves")
	addrFlag := flag.String("addr", "", "address this runner's transport listens on")
	parentAddrFlag := flag.String("parent-addr", "", "HTTP address of the Child coordinator that spawned this runner")
	dev := flag.Bool("dev", false, "single-host dev mode")
	flag.Parse()

	logger := log.New(os.Stderr, "[runner] ", log.LstdFlags)

	if *uuidFlag == "" || *sceneFlag == "" || *addrFlag == "" {
		logger.Fatalf("--uuid, --scene-uuid, and --addr are required")
	}
	self, err := ids.ParseWorkerID(*uuidFlag)
	if err != nil {
		logger.Fatalf("parse --uuid: %v", err)
	}
	scene, err := ids.ParseSceneID(*sceneFlag)
	if err != nil {
		logger.Fatalf("parse --scene-uuid: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *dev {
		logger.Printf("running in single-host dev mode")
	}

	client := httpapi.NewClient()
	masterAddr := fmt.Sprintf("%s:%d", cfg.PartitionnerAddr, cfg.PartitionnerPort)

	assignRunner := func(ctx context.Context, scene ids.SceneID, region geom.RegionBounds) (string, ids.WorkerID, error) {
		return client.AssignRunner(ctx, masterAddr, scene, region)
	}
	ackParent := func(ctx context.Context) error {
		return client.AckParent(ctx, *parentAddrFlag, scene)
	}

	w := worker.New(scene, self, *addrFlag, cfg, func() physics.Engine { return physics.NewStub() }, assignRunner, ackParent)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Printf("worker %s serving scene %s on %s", self, scene, *addrFlag)
	if err := w.Serve(ctx); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}
