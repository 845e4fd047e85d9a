package config

import "os"

// Environment variables supported:
//   - GHRELAY_SLACK_TOKEN  (overrides slack.bot_token)
//   - GHRELAY_GITHUB_TOKEN (overrides github.token)
//
// Tokens belong in the environment (or a secret manager feeding it), not
// in a config file that tends to end up in version control.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GHRELAY_SLACK_TOKEN"); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := os.Getenv("GHRELAY_GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
}
