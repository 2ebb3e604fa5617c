package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/predictoor/server/internal/events"
	"github.com/predictoor/server/internal/gateway"
	"github.com/predictoor/server/internal/leaderboard"
	"github.com/predictoor/server/internal/oracle"
	"github.com/predictoor/server/internal/participant"
	"github.com/predictoor/server/internal/prediction"
	"github.com/predictoor/server/internal/round"
	"github.com/predictoor/server/internal/scheduler"
	"github.com/predictoor/server/internal/scoring"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Gateway   *gateway.Service
	Scheduler *scheduler.Scheduler

	bus      *events.Bus
	natsPub  *events.NATSPublisher
	database *pgxpool.Pool
}

type stores struct {
	rounds       round.Repository
	predictions  prediction.Repository
	participants participant.Repository
	leaderboard  leaderboard.Repository
}

func setupServices(config *Config, database *pgxpool.Pool) (*Services, error) {
	clock := clockwork.NewRealClock()

	// Storage layer → App layer → Scheduler → Gateway.
	st, err := setupStores(config, database)
	if err != nil {
		return nil, err
	}

	svcs := &Services{database: database}

	var publisher events.Publisher
	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	var source gateway.EventSource
	switch config.Events.Mode {
	case "nats":
		natsURL := getEnv("NATS_URL", "nats://localhost:4222")
		pub, err := events.NewNATSPublisher(natsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to setup NATS publisher: %w", err)
		}
		consumerConfig := gateway.DefaultJetStreamConsumerConfig()
		consumerConfig.URL = natsURL
		consumerConfig.ConsumerName = getEnv("GATEWAY_CONSUMER", consumerConfig.ConsumerName)
		consumer, err := gateway.NewEventConsumer(manager, consumerConfig)
		if err != nil {
			pub.Close()
			return nil, fmt.Errorf("failed to setup event consumer: %w", err)
		}
		publisher = pub
		source = consumer
		svcs.natsPub = pub
		log.Info().Str("url", natsURL).Msg("using NATS event transport")
	default:
		bus := events.NewBus()
		publisher = bus
		source = gateway.NewBusConsumer(manager, bus)
		svcs.bus = bus
		log.Info().Msg("using in-process event bus")
	}

	priceOracle := setupOracle(config)
	scorer := setupScorer(config)

	schedConfig := scheduler.DefaultConfig()
	if d := config.roundDuration(); d > 0 {
		schedConfig.RoundDuration = d
	}
	if w := config.lockWindow(); w > 0 {
		schedConfig.LockWindow = w
	}
	if t := config.tickInterval(); t > 0 {
		schedConfig.TickInterval = t
	}

	agg := leaderboard.NewAggregator(st.leaderboard)
	roundApp := round.NewApp(st.rounds, st.predictions, clock)
	predictionApp := prediction.NewApp(st.predictions, st.participants, publisher, clock)

	sched := scheduler.New(st.rounds, st.predictions, scorer, agg, priceOracle, publisher, clock, schedConfig)
	svcs.Scheduler = sched

	wsHandler := gateway.NewWebSocketHandler(manager)
	stateHandler := gateway.NewStateHandler(roundApp, predictionApp, agg, sched, clock)
	svcs.Gateway = gateway.NewService(manager, wsHandler, stateHandler, source)

	return svcs, nil
}

func setupStores(config *Config, database *pgxpool.Pool) (*stores, error) {
	if config.Storage.Mode == "postgres" {
		if database == nil {
			return nil, fmt.Errorf("postgres storage requires a database connection")
		}
		return &stores{
			rounds:       round.NewPostgresRepository(database),
			predictions:  prediction.NewPostgresRepository(database),
			participants: participant.NewPostgresRepository(database),
			leaderboard:  leaderboard.NewPostgresRepository(database),
		}, nil
	}

	// The memory round and prediction stores reference each other: the round
	// store pushes scores down at completion, the prediction store re-checks
	// round state at write time. One side is attached after construction.
	participants := participant.NewMemoryRepository()
	predictions := prediction.NewMemoryRepository(nil, participants)
	rounds := round.NewMemoryRepository(predictions)
	predictions.SetRoundChecker(rounds)

	return &stores{
		rounds:       rounds,
		predictions:  predictions,
		participants: participants,
		leaderboard:  leaderboard.NewMemoryRepository(participants),
	}, nil
}

func setupOracle(config *Config) oracle.PriceOracle {
	if config.Oracle.Mode == "static" {
		price := config.Oracle.StaticPrice
		if price <= 0 {
			price = 100_000
		}
		log.Info().Float64("price", price).Msg("using static price oracle")
		return oracle.NewStaticOracle(price)
	}
	log.Info().
		Str("symbol", config.Oracle.Symbol).
		Msg("using Binance price oracle")
	return oracle.NewBinanceOracle(config.Oracle.BaseURL, config.Oracle.Symbol)
}

func setupScorer(config *Config) *scoring.Engine {
	if config.Game.Sensitivity > 0 {
		return scoring.NewEngine(scoring.WithSensitivity(config.Game.Sensitivity))
	}
	return scoring.NewEngine()
}

// Close releases transports and the database pool.
func (s *Services) Close() {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.natsPub != nil {
		s.natsPub.Close()
	}
	if s.database != nil {
		s.database.Close()
	}
}
