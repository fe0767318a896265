// Package commands defines the command table entry shared by the
// registry and the routers.
package commands

import tele "gopkg.in/telebot.v4"

// Command is one slash command. AdminOnly commands are gated on the
// configured admin id and stay out of the public command menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
}
