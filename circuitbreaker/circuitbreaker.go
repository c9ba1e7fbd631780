package circuitbreaker

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

var AuthBreaker *gobreaker.CircuitBreaker[string]
var CacheBreaker *gobreaker.CircuitBreaker[string]

func onChange(name string, from gobreaker.State, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		log.WithField("type", "breaker").Error(name + " breaker is open")
	} else if to == gobreaker.StateHalfOpen {
		log.WithField("type", "breaker").Warn(name + " breaker is half open")
	} else if to == gobreaker.StateClosed {
		log.WithField("type", "breaker").Info(name + " breaker is closed")
	}
}

func InitBreakers() {
	AuthBreaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:          "authBreaker",
		Timeout:       5 * time.Second,
		OnStateChange: onChange,
	})

	CacheBreaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:          "cacheBreaker",
		Timeout:       5 * time.Second,
		OnStateChange: onChange,
	})

	log.Info("Circuit breakers initialized")
}
