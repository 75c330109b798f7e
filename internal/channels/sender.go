// Package channels forwards alert records to third-party delivery channels.
// Formatting and transport are out of scope (spec §1 Non-goals); a Sender
// implementation owns both, the same way the original's ChannelHandler
// subclasses each wrap one concrete channel (log, email, PagerDuty, ...).
package channels

import (
	"context"

	"github.com/nodewatch/sentinel/internal/domain"
)

// Sender delivers one alert through a concrete channel (log line, email,
// webhook, ...). Implementations are free to batch, rate-limit, or drop
// duplicates; Send's error only controls whether this Worker's heartbeat is
// suppressed for the round (spec §4.6 "emit a heartbeat on success").
type Sender interface {
	Send(ctx context.Context, alert domain.Alert) error
}
