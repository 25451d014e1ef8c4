package adapter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"tunebot/internal/transport"
)

var forbiddenErrs = []error{
	tele.ErrBlockedByUser,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
	tele.ErrKickedFromChannel,
	tele.ErrNotStartedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrNotChannelMember,
	tele.ErrNoRightsToSend,
}

var invalidErrs = []error{
	tele.ErrChatNotFound,
	tele.ErrGroupMigrated,
}

// Fallback for errors telebot does not map to a sentinel.
var (
	retryAfterRe = regexp.MustCompile(`(?i)retry after (\d+)`)

	forbiddenMarkers = []string{
		"bot was blocked",
		"bot was kicked",
		"user is deactivated",
		"bot can't initiate conversation",
		"have no rights to send",
		"not enough rights",
		"forbidden",
	}
	invalidMarkers = []string{
		"chat not found",
		"user not found",
		"peer_id_invalid",
		"group chat was upgraded",
		"chat_write_forbidden",
	}
)

// classify maps telebot failures onto the transport error taxonomy so
// callers never look at Telegram error strings.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second, Err: err}
	}
	var migrated tele.GroupError
	if errors.As(err, &migrated) {
		return fmt.Errorf("%w: %v", transport.ErrInvalidRecipient, err)
	}
	for _, e := range invalidErrs {
		if errors.Is(err, e) {
			return fmt.Errorf("%w: %v", transport.ErrInvalidRecipient, err)
		}
	}
	for _, e := range forbiddenErrs {
		if errors.Is(err, e) {
			return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
		}
	}
	return classifyText(err)
}

func classifyText(err error) error {
	msg := strings.ToLower(err.Error())
	if m := retryAfterRe.FindStringSubmatch(msg); m != nil {
		secs, _ := strconv.Atoi(m[1])
		return &transport.RateLimitedError{RetryAfter: time.Duration(secs) * time.Second, Err: err}
	}
	// Invalid first: "chat_write_forbidden" would otherwise match "forbidden".
	for _, s := range invalidMarkers {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", transport.ErrInvalidRecipient, err)
		}
	}
	for _, s := range forbiddenMarkers {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
		}
	}
	return err
}
