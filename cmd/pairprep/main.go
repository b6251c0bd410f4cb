package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"pairprep/internal/auth"
	"pairprep/internal/cli"
	"pairprep/internal/config"
	"pairprep/pkg/utils/logger"
)

const defaultConfigPath = "configs/pairprep.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override platform base URL")
	wsBaseURL := flag.String("ws-base", "", "Override stream base URL")
	sandboxURL := flag.String("sandbox", "", "Override sandbox base URL")
	token := flag.String("token", "", "Override access token")
	statePath := flag.String("state", "", "Override token state path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *baseURL != "" {
		cfg.Platform.BaseURL = *baseURL
	}
	if *wsBaseURL != "" {
		cfg.Platform.WSBaseURL = *wsBaseURL
	}
	if *sandboxURL != "" {
		cfg.Sandbox.BaseURL = *sandboxURL
	}
	if *statePath != "" {
		cfg.Auth.TokenPath = *statePath
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer logger.Sync()

	tokenState, err := auth.Load(cfg.Auth.TokenPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load token state failed: %v\n", err)
		return
	}
	if *token != "" {
		tokenState.AccessToken = *token
	}

	session, err := cli.New(cfg, &tokenState, cfg.Auth.TokenPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init session failed: %v\n", err)
		return
	}
	if err := session.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}
