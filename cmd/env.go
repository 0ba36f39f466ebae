package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compliance-cli/internal/alert"
	"github.com/sells-group/compliance-cli/internal/audit"
	"github.com/sells-group/compliance-cli/internal/clock"
	"github.com/sells-group/compliance-cli/internal/deadline"
	"github.com/sells-group/compliance-cli/internal/notice"
	"github.com/sells-group/compliance-cli/internal/scoring"
	"github.com/sells-group/compliance-cli/internal/store"
)

// env bundles the wired services a command needs.
type env struct {
	Store     store.Store
	Deadlines *deadline.Service
	Notices   *notice.Service
	Scoring   *scoring.Engine
	Trail     *audit.Trail
	Alerter   *alert.Alerter
}

func (e *env) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "compliance.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newChecker(e *env) *alert.Checker {
	return alert.NewChecker(e.Deadlines, e.Alerter, cfg.Alerts)
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	clk := clock.System{}

	var cal *deadline.HolidayCalendar
	if cfg.Compliance.HolidayCalendarPath != "" {
		cal, err = deadline.LoadHolidayCalendar(cfg.Compliance.HolidayCalendarPath)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	deadlines := deadline.NewService(st, clk, deadline.Options{
		Calendar:      cal,
		AlertCooldown: time.Duration(cfg.Alerts.CooldownHours) * time.Hour,
		Concurrency:   cfg.Sweep.Concurrency,
	})

	var drafter notice.Drafter
	if cfg.Drafting.Enabled {
		drafter = notice.NewAnthropicDrafter(cfg.Drafting)
	}
	dispatcher := notice.NewHTTPDispatcher(cfg.Delivery)
	notices := notice.NewService(st, clk, drafter, dispatcher, cfg.Drafting.OrgName)

	engine := scoring.NewEngine(st, clk, scoring.Options{
		CacheTTL:    time.Duration(cfg.Compliance.ScoreCacheTTLMins) * time.Minute,
		FallbackUSD: cfg.Compliance.FallbackClaimUSD,
	})

	return &env{
		Store:     st,
		Deadlines: deadlines,
		Notices:   notices,
		Scoring:   engine,
		Trail:     audit.NewTrail(st, clk),
		Alerter:   alert.NewAlerter(cfg.Alerts),
	}, nil
}
