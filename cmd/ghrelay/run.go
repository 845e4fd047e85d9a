package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"ghrelay/internal/config"
	"ghrelay/internal/cursor"
	"ghrelay/internal/github"
	"ghrelay/internal/relay"
	"ghrelay/internal/slack"
	"ghrelay/pkg/logx"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	slackc := slack.NewClient(slack.Config{
		BotToken:   cfg.Slack.BotToken,
		APIBase:    cfg.Slack.APIBase,
		RatePerSec: cfg.Slack.RatePerSec,
	}, logx.NewConsole(cfg.Logging.Level))

	logSvc, log := logx.New(cfg.Logging.Logx(), slackc)
	defer logSvc.Close()
	mgr.SetLogger(log)

	ghc := github.NewClient(github.Config{
		Token:      cfg.GitHub.Token,
		APIBase:    cfg.GitHub.APIBase,
		GraphQLURL: cfg.GitHub.GraphQLURL,
		RatePerSec: cfg.GitHub.RatePerSec,
	}, log)

	pollCfg, err := pollerConfig(cfg)
	if err != nil {
		return err
	}

	busy, err := cfg.StoreBusyTimeout()
	if err != nil {
		return err
	}
	store, err := cursor.Open(cursor.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		Channel:     cfg.Slack.MailChannel,
		BusyTimeout: busy,
	}, log)
	if err != nil {
		return err
	}
	defer store.Close()

	poller := relay.New(pollCfg, relay.Deps{
		Source: slackc,
		Sink:   slackc,
		GitHub: ghc,
		Unsub:  ghc,
		Store:  store,
		Log:    log,
	})

	// Hot reload: re-apply the logging and polling knobs between cycles.
	// Channel/token/store changes need a restart.
	go func() {
		if err := mgr.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	go func() {
		for next := range sub {
			logSvc.Apply(next.Logging.Logx())
			if pc, err := pollerConfig(next); err == nil {
				poller.Apply(pc)
			} else {
				log.Warn("ignoring reloaded poll config", logx.Err(err))
			}
		}
	}()

	_, _ = sd.SdNotify(false, sd.SdNotifyReady)
	defer func() { _, _ = sd.SdNotify(false, sd.SdNotifyStopping) }()

	log.Info("relay started",
		logx.String("mail_channel", cfg.Slack.MailChannel),
		logx.String("notif_channel", cfg.Slack.NotifChannel),
		logx.Duration("interval", pollCfg.Interval))
	return poller.Run(ctx)
}

func pollerConfig(cfg *config.Config) (relay.Config, error) {
	interval, err := cfg.PollInterval()
	if err != nil {
		return relay.Config{}, err
	}
	backoff, err := cfg.RetryBackoff()
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		MailChannel:  cfg.Slack.MailChannel,
		NotifChannel: cfg.Slack.NotifChannel,
		Login:        cfg.GitHub.Login,
		Interval:     interval,
		RetryBackoff: backoff,
		FetchLimit:   cfg.Poll.FetchLimit,
	}, nil
}
