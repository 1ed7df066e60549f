package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/auth"
	"github.com/travelrizz/travelrizz-backend/internal/chat"
	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/currency"
	"github.com/travelrizz/travelrizz-backend/internal/database"
	"github.com/travelrizz/travelrizz-backend/internal/events"
	"github.com/travelrizz/travelrizz-backend/internal/itinerary"
	"github.com/travelrizz/travelrizz-backend/internal/maps"
	"github.com/travelrizz/travelrizz-backend/internal/metrics"
	"github.com/travelrizz/travelrizz-backend/internal/payments"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/session"
	"github.com/travelrizz/travelrizz-backend/internal/stage"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
	"github.com/travelrizz/travelrizz-backend/internal/travelinfo"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
	"github.com/travelrizz/travelrizz-backend/internal/tools"
	"github.com/travelrizz/travelrizz-backend/internal/upstream"
	"github.com/travelrizz/travelrizz-backend/internal/weather"
)

// eventBuffer is the per-subscriber queue length of the event bus.
const eventBuffer = 64

// Services holds all service instances
type Services struct {
	Config *config.Config
	Logger *logrus.Logger

	Store  storage.Store
	Locker *storage.Locker
	Bus    *events.Bus
	Audit  *audit.Service
	Tokens *auth.TokenService
	Health *upstream.Health

	Sessions   *session.Store
	Metrics    *metrics.Store
	Trips      *trip.Store
	Stages     *stage.Validator
	Saved      *places.SavedStore
	Places     *maps.PlacesClient
	Routes     *maps.RoutesClient
	TravelInfo *travelinfo.Cache
	Itinerary  *itinerary.Service
	Weather    *weather.Client
	Currency   *currency.Service
	Payments   *payments.Service
	Tools      *tools.Executor
	Chat       *chat.Service

	db *database.DB
}

// New wires every service from configuration. The storage backend is
// chosen by cfg.Storage.Driver; Postgres also carries the audit trail.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Services, error) {
	s := &Services{Config: cfg, Logger: logger, Locker: storage.NewLocker()}

	var auditRepo audit.Repository
	if cfg.Database.Enabled || cfg.Storage.Driver == "postgres" {
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(cfg.Database); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		auditRepo = audit.NewPostgresRepository(db.DB)
	}

	retention := cfg.Session.AbsoluteTimeout
	switch cfg.Storage.Driver {
	case "", "memory":
		s.Store = storage.NewMemoryStore(retention)
	case "redis":
		client, err := storage.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Store = storage.NewRedisStore(client, retention)
	case "postgres":
		s.Store = storage.NewPostgresStore(s.db.DB)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	s.Bus = events.NewBus(eventBuffer, logger)
	s.Audit = audit.NewService(auditRepo, logger)
	secret := cfg.Auth.TokenSecret
	if secret == "" {
		secret = "change-me-in-production"
		logger.Warn("Using default token secret. Set TRAVEL_TOKEN_SECRET in production!")
	}
	s.Tokens = auth.NewTokenService(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	s.Health = upstream.NewHealth()

	s.Sessions = session.NewStore(s.Store, s.Locker, cfg.Session, s.Bus, s.Audit, logger)
	s.Metrics = metrics.NewStore(s.Store, s.Locker, s.Sessions, cfg.Limits, s.Bus, s.Audit, logger)
	s.Trips = trip.NewStore(s.Store, s.Locker, logger)
	s.Stages = stage.NewValidator(s.Store, s.Locker, s.Sessions, s.Metrics, s.Bus, s.Audit, logger)
	s.Saved = places.NewSavedStore(s.Store, s.Locker, s.Metrics, s.Bus, logger)

	googleOpts := upstream.Options{RatePerSecond: cfg.Google.RatePerSecond}
	s.Places = maps.NewPlacesClient(
		upstream.NewClient("google_places", googleOpts, s.Health, logger),
		cfg.Google.PlacesBaseURL, cfg.Google.MapsAPIKey, cfg.Google.SearchTimeout, logger)
	s.Routes = maps.NewRoutesClient(
		upstream.NewClient("google_routes", googleOpts, s.Health, logger),
		cfg.Google.RoutesBaseURL, cfg.Google.MapsAPIKey)
	s.TravelInfo = travelinfo.NewCache(s.Store, s.Locker, s.Routes, travelinfo.DefaultTTL, logger)
	s.Itinerary = itinerary.NewService(s.Trips, s.Saved, s.Routes, &lazyZones{logger: logger}, logger)

	s.Weather = weather.NewClient(
		upstream.NewClient("openweather", upstream.Options{}, s.Health, logger),
		cfg.Weather.BaseURL, cfg.Weather.APIKey, logger)
	s.Currency = currency.NewService(
		upstream.NewClient("freecurrencyapi", upstream.Options{}, s.Health, logger),
		cfg.Currency.BaseURL, cfg.Currency.APIKey, logger)

	var checkout payments.CheckoutSessions
	if cfg.Stripe.SecretKey != "" {
		checkout = payments.NewStripeSessions(cfg.Stripe.SecretKey)
	}
	s.Payments = payments.NewService(checkout, s.Metrics, s.Audit, logger)

	s.Tools = tools.NewExecutor(s.Places, s.Saved, s.Trips, s.Stages, s.Currency, logger)
	s.Chat = chat.NewService(chat.NewClient(cfg.OpenAI), cfg.OpenAI, s.Trips, s.Stages, s.Metrics, s.Saved, s.Tools, logger)

	logger.WithFields(logrus.Fields{
		"storage":  cfg.Storage.Driver,
		"database": s.db != nil,
		"openai":   cfg.OpenAI.APIKey != "",
		"stripe":   cfg.Stripe.SecretKey != "",
	}).Info("Services initialized")

	return s, nil
}

// DB returns the database connection, or nil when none is configured.
func (s *Services) DB() *database.DB {
	return s.db
}

// ResetClient clears everything a client has stored and starts over.
func (s *Services) ResetClient(ctx context.Context, clientID string) error {
	if err := s.Stages.Reset(ctx, clientID); err != nil {
		return err
	}
	if err := s.Saved.Clear(ctx, clientID); err != nil {
		return err
	}
	if err := s.TravelInfo.Clear(ctx, clientID); err != nil {
		return err
	}
	if err := s.Trips.Clear(ctx, clientID); err != nil {
		return err
	}
	return s.Sessions.Clear(ctx, clientID)
}

// RunJanitor periodically deletes idle client scopes until ctx is done.
// Memory and Redis storage expire on their own; only Postgres needs it.
func (s *Services) RunJanitor(ctx context.Context, interval time.Duration) {
	pg, ok := s.Store.(*storage.PostgresStore)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.PurgeIdle(ctx, s.Config.Session.AbsoluteTimeout)
			if err != nil {
				s.Logger.WithError(err).Warn("Failed to purge idle client storage")
				continue
			}
			if n > 0 {
				s.Logger.WithField("rows", n).Info("Purged idle client storage")
			}
		}
	}
}

// Close releases storage and the database connection
func (s *Services) Close() error {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.Logger.WithError(err).Warn("Failed to close storage")
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// lazyZones loads the time zone boundaries on first use.
type lazyZones struct {
	once   sync.Once
	finder itinerary.ZoneFinder
	logger *logrus.Logger
}

func (z *lazyZones) GetTimezoneName(lng, lat float64) string {
	z.once.Do(func() {
		start := time.Now()
		finder, err := itinerary.NewZoneFinder()
		if err != nil {
			z.logger.WithError(err).Warn("Time zone lookup unavailable, exports use UTC")
			return
		}
		z.finder = finder
		z.logger.WithField("took", time.Since(start)).Debug("Loaded time zone boundaries")
	})
	if z.finder == nil {
		return ""
	}
	return z.finder.GetTimezoneName(lng, lat)
}
