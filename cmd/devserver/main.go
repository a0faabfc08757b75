package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/kappi/internal/buildinfo"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/devserver"
	"github.com/dmitrijs2005/kappi/internal/devserver/config"
	"github.com/dmitrijs2005/kappi/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	secret := cfg.SecretKey
	if secret == "" {
		if secret, err = common.MakeRandHexString(32); err != nil {
			log.Fatalf("generate secret: %v", err)
		}
		logger.Warn(ctx, "no secret key configured, tokens will not survive a restart")
	}

	app := devserver.NewApp(cfg.Addr, devserver.Config{
		Secret:     []byte(secret),
		TokenTTL:   cfg.TokenValidity,
		BcryptCost: cfg.BcryptCost,
		Logger:     logger,
	})

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
