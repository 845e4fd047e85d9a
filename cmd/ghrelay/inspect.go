package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ghrelay/internal/config"
	"ghrelay/internal/github"
	"ghrelay/internal/notif"
	"ghrelay/internal/slack"
	"ghrelay/pkg/logx"
)

var (
	inspectOldest string
	inspectLimit  int
)

// inspect runs the extract+classify pipeline against live data without
// sending or persisting anything, and dumps both the raw messages and the
// resulting notifications as JSON for debugging matcher behavior.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Classify a batch of messages and dump the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd.Context())
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectOldest, "oldest", "", "fetch messages with ts strictly greater than this")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 1, "max messages to fetch")
	_ = inspectCmd.MarkFlagRequired("oldest")
	rootCmd.AddCommand(inspectCmd)
}

const (
	inspectMsgsFile   = "_inspect_msgs.json"
	inspectNotifsFile = "_inspect_notifs.json"
)

type inspectedNotif struct {
	Kind   string             `json:"kind"`
	Detail notif.Notification `json:"detail"`
}

func inspect(ctx context.Context) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	log := logx.NewConsole(cfg.Logging.Level)

	slackc := slack.NewClient(slack.Config{
		BotToken: cfg.Slack.BotToken,
		APIBase:  cfg.Slack.APIBase,
	}, log)
	ghc := github.NewClient(github.Config{
		Token:      cfg.GitHub.Token,
		APIBase:    cfg.GitHub.APIBase,
		GraphQLURL: cfg.GitHub.GraphQLURL,
	}, log)

	msgs, err := slackc.ConversationsHistory(ctx, slack.HistoryParams{
		Channel:  cfg.Slack.MailChannel,
		OldestTS: inspectOldest,
		Limit:    inspectLimit,
	})
	if err != nil {
		return err
	}
	if err := writeJSON(inspectMsgsFile, msgs); err != nil {
		return err
	}

	var notifs []inspectedNotif
	for _, msg := range msgs {
		em, ok := slack.ExtractEmail(msg)
		if !ok {
			continue
		}
		n, err := notif.Classify(ctx, ghc, notif.ParseEmail(em))
		if err != nil {
			return err
		}
		notifs = append(notifs, inspectedNotif{Kind: n.Kind(), Detail: n})
	}
	if err := writeJSON(inspectNotifsFile, notifs); err != nil {
		return err
	}

	fmt.Printf("wrote %d messages to %s and %d notifications to %s\n",
		len(msgs), inspectMsgsFile, len(notifs), inspectNotifsFile)
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
