package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/botherd/botherd"
)

// This example loads a TOML config file and runs the defined bots using the
// public botherd facade.
func main() {
	cfgPath := filepath.Join("config", "botherd.toml")
	cfg, err := botherd.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}

	mgr := botherd.New(cfg.Manager.Addr(), nil)
	if err := mgr.Listen(); err != nil {
		panic(err)
	}
	defer func() { _ = mgr.Close() }()
	go mgr.Serve()

	if genv, err := botherd.LoadGlobalEnv(cfgPath); err == nil && len(genv) > 0 {
		mgr.SetGlobalEnv(genv)
	}

	specs, err := cfg.Specs()
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	for _, sp := range specs {
		mgr.Register(sp)
		if err := mgr.Start(ctx, sp.BotID); err != nil {
			panic(err)
		}
	}

	// Give workers a moment to connect back, then print statuses.
	time.Sleep(500 * time.Millisecond)
	b, _ := json.MarshalIndent(mgr.StatusAll(ctx), "", "  ")
	fmt.Println(string(b))

	_ = mgr.ShutdownAll(ctx, 5*time.Second)
}
