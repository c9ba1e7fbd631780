package main

import (
	"plaza-relay/auth"
	"plaza-relay/circuitbreaker"
	"plaza-relay/config"
	"plaza-relay/nats"
	"plaza-relay/presence"
	"plaza-relay/server"
	"plaza-relay/signal"
)

func main() {
	conf := config.Init()
	circuitbreaker.InitBreakers()

	nats.Connect(conf.NatsURL)
	gate := auth.NewGate(conf.AuthEndpoint, conf.TokenCacheURL, conf.TokenCacheSecs)

	presenceService := presence.NewService()
	signalService := signal.NewService(conf.StreamTiers)
	go presenceService.Run()
	go signalService.Run()

	server.Start(conf, gate, presenceService, signalService)
}
