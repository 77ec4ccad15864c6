package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"dynamics-archiver-go/internal/api"
	"dynamics-archiver-go/internal/archiver"
	"dynamics-archiver-go/internal/cache"
	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/logger"
	"dynamics-archiver-go/internal/registry"
	"dynamics-archiver-go/internal/store"
)

func main() {
	configPath := flag.String("config", ".", "path to config file")
	apiMode := flag.Bool("api", false, "start api server")
	apiAddr := flag.String("addr", ":8080", "api server address")
	hosts := flag.String("hosts", "", "comma separated owner ids to crawl (overrides config)")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.InitFromConfig()

	if err := store.Init(context.Background()); err != nil {
		logger.Error("store init failed", "backend", config.AppConfig.StoreBackend, "err", err)
		os.Exit(1)
	}

	if *apiMode {
		srv := api.NewServer()
		logger.Info("starting api server", "addr", *apiAddr)
		if err := http.ListenAndServe(*apiAddr, srv.Handler()); err != nil {
			logger.Error("api server failed", "err", err)
			os.Exit(1)
		}
		return
	}

	hostList := config.AppConfig.HostMidList
	if v := strings.TrimSpace(*hosts); v != "" {
		hostList = nil
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hostList = append(hostList, h)
			}
		}
	}
	if len(hostList) == 0 {
		fmt.Println("no owners to crawl: set HOST_MID_LIST or pass -hosts")
		os.Exit(1)
	}

	reg := registry.New()
	a := archiver.New(reg, cache.NewFromConfig(config.AppConfig))
	opts := archiver.Options{
		NeedTop:   config.AppConfig.NeedTop,
		SaveMedia: config.AppConfig.SaveMedia,
	}

	logger.Info("starting crawl", "owners", len(hostList))
	res := a.RunMany(context.Background(), hostList, opts)
	if res.Failed > 0 {
		logger.Error("crawl finished with failures", "processed", res.Processed, "succeeded", res.Succeeded, "failed", res.Failed, "failure_kinds", res.FailureKinds)
		os.Exit(1)
	}
	logger.Info("crawl finished", "processed", res.Processed, "succeeded", res.Succeeded)
}
