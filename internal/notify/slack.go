package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// Notifier posts organizer-facing alerts and returns a reference that
// later posts about the same conversation can thread under.
type Notifier interface {
	Post(ctx context.Context, text, threadRef string) (string, error)
}

// SlackNotifier posts to a single Slack channel. Conversation messages
// from the same subscriber thread under the first post via the message
// timestamp Slack returns.
type SlackNotifier struct {
	client    *slack.Client
	channelID string
	logger    *logging.Logger
}

// SlackConfig holds configuration for the Slack notifier.
type SlackConfig struct {
	BotToken  string
	ChannelID string

	// APIURL overrides the Slack API endpoint. Tests point this at a
	// local server; leave empty for production.
	APIURL string
}

// NewSlackNotifier creates a Slack notifier, or nil when unconfigured.
func NewSlackNotifier(cfg SlackConfig, logger *logging.Logger) *SlackNotifier {
	if cfg.BotToken == "" || cfg.ChannelID == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &SlackNotifier{
		client:    slack.New(cfg.BotToken, opts...),
		channelID: cfg.ChannelID,
		logger:    logger,
	}
}

// Post sends text to the configured channel. A non-empty threadRef makes
// the message a threaded reply; the returned timestamp identifies the
// post so callers can thread future messages under it.
func (s *SlackNotifier) Post(ctx context.Context, text, threadRef string) (string, error) {
	msgOpts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadRef != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(threadRef))
	}

	_, ts, err := s.client.PostMessageContext(ctx, s.channelID, msgOpts...)
	if err != nil {
		s.logger.Error("slack post failed", "error", err, "channel", s.channelID)
		return "", fmt.Errorf("notify: slack post: %w", err)
	}
	return ts, nil
}

// StubNotifier is a no-op notifier for when Slack is disabled.
type StubNotifier struct {
	logger *logging.Logger
}

// NewStubNotifier creates a stub notifier that logs but doesn't post.
func NewStubNotifier(logger *logging.Logger) *StubNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubNotifier{logger: logger}
}

// Post logs the notification but doesn't send it anywhere.
func (s *StubNotifier) Post(ctx context.Context, text, threadRef string) (string, error) {
	s.logger.Info("stub notifier: would post", "text_preview", truncate(text, 50), "thread_ref", threadRef)
	return "", nil
}

// Ensure interface compliance
var _ Notifier = (*SlackNotifier)(nil)
var _ Notifier = (*StubNotifier)(nil)
