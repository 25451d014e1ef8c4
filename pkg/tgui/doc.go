// Package tgui builds Telegram HTML (ParseMode "HTML") message text with
// escaping applied to every value.
package tgui
