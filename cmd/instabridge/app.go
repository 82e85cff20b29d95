package main

import (
	"os"

	prom "github.com/prometheus/client_golang/prometheus"

	"instabridge/pkg/auth"
	"instabridge/pkg/config"
	"instabridge/pkg/instagram"
	"instabridge/pkg/logger"
	"instabridge/pkg/metrics"
	"instabridge/pkg/ratelimit"
	"instabridge/pkg/relay"
	"instabridge/pkg/settings"
	"instabridge/pkg/state"
	"instabridge/pkg/storage"
	"instabridge/pkg/ui"
	"instabridge/pkg/whatsapp"
)

// sessionFile keeps the Instagram session between runs
const sessionFile = "ig_session.json"

// app holds what every command shares
type app struct {
	cfg      *config.Config
	log      logger.Logger
	narrator ui.Narrator
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
	states   *state.Store
	settings *settings.Store
}

func commandFlags() map[string]interface{} {
	return map[string]interface{}{
		"log-level": logLevel,
		"data-dir":  dataDir,
		"bridge":    bridgeURL,
	}
}

// requirement is how much of the configuration a command must validate
type requirement int

const (
	needNothing requirement = iota
	// needChannel covers commands that only send through the bridge
	needChannel
	// needAccount also resolves the Instagram login
	needAccount
)

// loadApp reads configuration, sets up logging and validates what need asks for
func loadApp(need requirement) (*app, error) {
	cfg, err := config.Load(configFile, commandFlags())
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}

	switch need {
	case needAccount:
		resolveCredentials(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	case needChannel:
		if err := cfg.ValidateDelivery(); err != nil {
			return nil, err
		}
	}

	var narrator ui.Narrator = ui.Stdout()
	if noColor {
		narrator = ui.NewConsole(os.Stdout, false)
	}

	log := logger.GetLogger()
	registry := prom.NewRegistry()
	return &app{
		cfg:      cfg,
		log:      log,
		narrator: narrator,
		registry: registry,
		recorder: metrics.NewPrometheusRecorder(registry),
		states:   state.NewStore(cfg.StatePath(), log),
		settings: settings.NewStore(cfg.SettingsPath(), log),
	}, nil
}

// resolveCredentials fills a missing username or password from the
// credential stores. Whatever is still missing is reported by Validate.
func resolveCredentials(cfg *config.Config) {
	if cfg.Instagram.Username != "" && cfg.Instagram.Password != "" {
		return
	}
	manager, err := auth.NewManager()
	if err != nil {
		return
	}

	var account *auth.Account
	if cfg.Instagram.Username != "" {
		account, err = manager.Retrieve(cfg.Instagram.Username)
	} else {
		account, err = manager.RetrieveDefault()
	}
	if err != nil {
		logger.WithError(err).Debug("No stored Instagram credentials")
		return
	}
	cfg.Instagram.Username = account.Username
	cfg.Instagram.Password = account.Password
}

func (a *app) instagram() (*instagram.Client, error) {
	profile, err := ratelimit.ProfileByName(a.cfg.Instagram.RateProfile)
	if err != nil {
		return nil, err
	}
	return instagram.NewClient(instagram.Config{
		BaseURL:          a.cfg.Instagram.BaseURL,
		UserAgent:        a.cfg.Instagram.UserAgent,
		Timeout:          a.cfg.Instagram.Timeout,
		MaxRetries:       a.cfg.Instagram.MaxRetries,
		MaxRateLimitWait: a.cfg.Instagram.MaxRateLimitWait,
		SessionFile:      a.cfg.Resolve(sessionFile),
	},
		instagram.WithLimiter(ratelimit.NewHuman(profile)),
		instagram.WithLogger(a.log.WithField("component", "instagram")),
	), nil
}

func (a *app) whatsapp() *whatsapp.Client {
	return whatsapp.NewClient(whatsapp.Config{
		BridgeURL:      a.cfg.WhatsApp.BridgeURL,
		RequestTimeout: a.cfg.WhatsApp.RequestTimeout,
	}, whatsapp.WithLogger(a.log.WithField("component", "whatsapp")))
}

func (a *app) contentContact() relay.Target {
	return relay.Target{Name: a.cfg.WhatsApp.ContentContactName, Phone: a.cfg.WhatsApp.ContentPhone}
}

func (a *app) reportContact() relay.Target {
	return relay.Target{Name: a.cfg.WhatsApp.ReportContactName, Phone: a.cfg.WhatsApp.ReportPhone}
}

// orchestrator wires the relay. source and channel may be nil for commands
// that only touch local files.
func (a *app) orchestrator(source relay.Source, channel relay.Channel) (*relay.Orchestrator, error) {
	media, err := storage.NewManager(a.cfg.MediaPath())
	if err != nil {
		return nil, err
	}
	return relay.New(relay.Deps{
		Source:   source,
		Channel:  channel,
		State:    a.states,
		Settings: a.settings,
		Media:    media,
	}, relay.Options{
		Username:       a.cfg.Instagram.Username,
		Password:       a.cfg.Instagram.Password,
		ContentContact: a.contentContact(),
		MessagePrefix:  a.cfg.WhatsApp.MessagePrefix,
		MaxPostsSince:  a.cfg.Instagram.MaxPostsSince,
	},
		relay.WithLogger(a.log),
		relay.WithNarrator(a.narrator),
		relay.WithMetrics(a.recorder),
		// CDN fetches skip the API limiter; keep them lightly spaced
		relay.WithDownloadPacer(ratelimit.NewHuman(ratelimit.Analytics)),
	), nil
}

// relay builds the orchestrator against the live adapters
func (a *app) relay() (*relay.Orchestrator, *instagram.Client, *whatsapp.Client, error) {
	ig, err := a.instagram()
	if err != nil {
		return nil, nil, nil, err
	}
	wa := a.whatsapp()
	orch, err := a.orchestrator(ig, wa)
	if err != nil {
		return nil, nil, nil, err
	}
	return orch, ig, wa, nil
}
