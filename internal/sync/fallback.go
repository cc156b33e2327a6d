package sync

import (
	"context"
	"time"

	"github.com/wachbuch/roster-mirror/internal/logger"
	"github.com/wachbuch/roster-mirror/internal/roster"
)

// ensureSession makes sure the client holds a session the remote still
// accepts, walking the stored credentials when it does not.
func (c *Coordinator) ensureSession(ctx context.Context) roster.ClientState {
	if c.client.Authenticated() {
		switch probe := c.client.TestConnection(ctx); probe {
		case roster.StateSuccessful:
			return roster.StateSuccessful
		case roster.StateConnectionError:
			return roster.StateConnectionError
		default:
			// The remote answered but the session is no longer good.
			c.client.ClearSession()
		}
	}
	return c.loginWithFallback(ctx)
}

// loginWithFallback walks the enabled credentials, most recently
// renewed first. A rejected credential is disabled and the next one
// tried after a short delay; an unreachable remote aborts immediately,
// since every further attempt would fail the same way. A credential
// that logs in but fails the follow-up probe counts as exhausted.
func (c *Coordinator) loginWithFallback(ctx context.Context) roster.ClientState {
	credentials := c.profile.OrderedEnabled()
	if len(credentials) == 0 {
		return roster.StateCredentialsError
	}

	for i, cred := range credentials {
		state := c.client.Login(ctx, cred.Username, cred.PasswordHash)
		c.metrics.RecordFetch("login", state.String())

		switch state {
		case roster.StateSuccessful:
			c.profile.MarkUsed(cred.Username)
			c.saveProfile()
			if probe := c.client.TestConnection(ctx); probe != roster.StateSuccessful {
				logger.Warn("login succeeded but session probe failed",
					"username", cred.Username, "state", probe.String())
				c.client.ClearSession()
				return roster.StateCredentialsError
			}
			return roster.StateSuccessful

		case roster.StateCredentialsError:
			logger.Warn("stored credential rejected, disabling it", "username", cred.Username)
			c.profile.Disable(cred.Username)
			c.saveProfile()
			if i < len(credentials)-1 {
				select {
				case <-time.After(c.fallbackDelay):
				case <-ctx.Done():
					return roster.StateConnectionError
				}
			}

		case roster.StateConnectionError:
			return roster.StateConnectionError

		default:
			return roster.StateServerAppError
		}
	}
	return roster.StateCredentialsError
}

func (c *Coordinator) saveProfile() {
	if err := c.profile.Save(); err != nil {
		logger.Error("failed to persist profile", "error", err)
	}
}
