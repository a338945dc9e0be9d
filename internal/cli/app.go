package cli

import (
	"MozoPOS/internal/config"
	"MozoPOS/internal/database"
	"MozoPOS/internal/draft"
	"MozoPOS/internal/handlers/httphandler"
	"MozoPOS/internal/metrics"
	"MozoPOS/internal/mozoapi"
	"MozoPOS/internal/ordering"
	"MozoPOS/internal/payment"
	"MozoPOS/internal/tablestate"
	"MozoPOS/internal/telegram"
	"MozoPOS/internal/verify"

	"github.com/jmoiron/sqlx"
)

// App is the wired service.
type App struct {
	DB      *sqlx.DB
	Handler *httphandler.Handler
}

func NewApp(cfg *config.Config) (*App, error) {
	path := cfg.DATABASE.Path
	if path == "" {
		path = database.DB_NAME
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}

	api := mozoapi.NewAPI(cfg)
	gate := tablestate.NewGate(api, cfg)
	oracle := verify.New(api, cfg)
	m := metrics.New()
	alerts := telegram.New(cfg)
	drafts := draft.New(db)

	return &App{
		DB: db,
		Handler: &httphandler.Handler{
			Orders: ordering.New(cfg, ordering.Deps{
				API:     api,
				Gate:    gate,
				Oracle:  oracle,
				Drafts:  drafts,
				Metrics: m,
				Alerts:  alerts,
			}),
			Payments: payment.New(cfg, payment.Deps{
				API:     api,
				Gate:    gate,
				Oracle:  oracle,
				Metrics: m,
				Alerts:  alerts,
			}),
			Tables:  gate,
			Drafts:  drafts,
			Metrics: m,
		},
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
