// Package storage persists the bot's small amount of durable state:
//   - the sent-tracks ledger (track id -> Telegram file reference)
//   - the served-users/served-chats directory used by broadcasts
//   - an audit trail of broadcast reports
package storage
