// Package bot wires the workflow engine, services, and command registry into
// the shared Telegram runtime.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	corebootstrap "groupcast/core/bootstrap"
	corecmd "groupcast/core/cmd"
	coretelegram "groupcast/core/telegram"
	tghelpers "groupcast/core/telegram/helpers"
	"groupcast/core/telegram/middleware"
	"groupcast/core/telegram/router"
	"groupcast/internal/accounts"
	"groupcast/internal/accounts/tdlib"
	"groupcast/internal/flow"
	"groupcast/internal/flows"
	"groupcast/internal/health"
	"groupcast/internal/service"
	"groupcast/internal/session"

	"groupcast/internal/repository/postgres"
)

// App holds the assembled application.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	engine   *flow.Engine
	accounts *service.Accounts
	groups   *service.Groups
	access   middleware.AccessOptions
	health   *health.Server
}

// Bootstrap initializes infrastructure and assembles the application. It
// satisfies the corecmd bootstrap contract.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
	}

	res, err := corebootstrap.Run(corebootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	dialer := tdlib.NewDialer(cfg.Accounts.SessionDir)
	accountSvc := service.NewAccounts(postgres.NewAccountRepo(res.DB))
	groupSvc := service.NewGroups(dialer, postgres.NewGroupRepo(res.DB), accountSvc, accounts.Options{
		MessageDelay: time.Duration(cfg.Accounts.MessageDelayMS) * time.Millisecond,
		GroupDelay:   time.Duration(cfg.Accounts.GroupDelayMS) * time.Millisecond,
	})

	engine := flow.NewEngine(session.NewStore())
	flows.New(accountSvc, groupSvc, dialer, cfg.Accounts.MaxBulk).RegisterAll(engine)

	app := &App{
		cfg:      cfg,
		db:       res.DB,
		engine:   engine,
		accounts: accountSvc,
		groups:   groupSvc,
		access: middleware.NewAccessOptions(cfg.Core.Telegram.PrivilegedIDs, func(c tele.Context) error {
			return tghelpers.SendText(c, "🚫 This command is restricted.")
		}),
	}
	if cfg.Health.Listen != "" {
		app.health = health.New(cfg.Health.Listen, res.DB)
	}
	return app, nil
}

// identity builds the engine-facing identity for the inbound sender.
func (a *App) identity(c tele.Context) flow.Identity {
	sender := c.Sender()
	if sender == nil {
		return flow.Identity{}
	}
	name := sender.Username
	if name == "" {
		name = sender.FirstName
	}
	return flow.Identity{
		ID:         sender.ID,
		Name:       name,
		Privileged: a.access.Allowed(sender.ID),
	}
}

// engineFlow adapts the engine to the text router's Flow interface.
type engineFlow struct {
	app *App
}

func (f engineFlow) InProgress(userID int64) bool {
	return f.app.engine.InProgress(userID)
}

func (f engineFlow) HandleText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	err := f.app.engine.HandleText(ctx, f.app.identity(c), c.Text(), newPrompter(c))
	if err == flow.ErrIdle {
		return nil
	}
	return err
}

// TelegramRunOptions assembles routes, middlewares, and lifecycle hooks for
// the shared Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := a.buildRegistry()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{Access: a.access})
	routes = append(routes, router.TextRoutes(engineFlow{app: a}, reg, router.TextOptions{})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	opts := coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			if a.health != nil {
				a.health.Start()
			}
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			if a.health != nil {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.health.Stop(stopCtx)
			}
			return a.db.Close()
		},
	}
	return opts, nil
}
