package chat

import (
	"strings"
	"time"

	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/protocol"
)

const (
	TypingRefresh = 10 * time.Second
	TypingExpiry  = 15 * time.Second
)

// Draft reports the content of my input box for a conversation. The server is
// told when typing starts and stops, and reminded while it goes on.
func (c *Chat) Draft(target, text string) {
	if target == "" {
		target = Group
	}
	hasContent := strings.TrimSpace(text) != ""
	switch {
	case hasContent && !c.drafting[target]:
		c.drafting[target] = true
		c.sendTyping(target, true)
		c.timers.Set("draft:"+target, loop.Every(c.clock, TypingRefresh, func() {
			c.sendTyping(target, true)
		}))
	case !hasContent && c.drafting[target]:
		c.endTyping(target)
	}
}

func (c *Chat) endTyping(target string) {
	if !c.drafting[target] {
		return
	}
	delete(c.drafting, target)
	c.timers.Stop("draft:" + target)
	c.sendTyping(target, false)
}

func (c *Chat) endAllTyping() {
	for target := range c.drafting {
		c.endTyping(target)
	}
}

func (c *Chat) sendTyping(target string, typing bool) {
	msg := protocol.Typing{
		ChatType:   models.ChatGroup,
		SenderID:   c.st.ParticipantID,
		SenderName: c.senderName(),
		IsTyping:   typing,
	}
	if target != Group {
		msg.ChatType = models.ChatIndividual
		msg.TargetID = protocol.OptionalString(target)
	}
	c.sender.Send(msg)
}

// Typing handles an inbound typing indicator. Individual indicators count
// only when addressed to me. An indicator lapses after TypingExpiry without
// a refresh.
func (c *Chat) Typing(ind protocol.TypingIndicator) {
	if c.st.IsMe(ind.SenderID) {
		return
	}
	key := Group
	if ind.ChatType == models.ChatIndividual || (ind.ChatType == "" && ind.TargetID != "") {
		if !c.st.IsMe(ind.TargetID) {
			return
		}
		key = ind.SenderID
	}

	if !ind.IsTyping {
		c.clearTyper(key)
		c.changed()
		return
	}
	c.typers[key] = ind.SenderName
	c.timers.Set("typer:"+key, c.clock.AfterFunc(TypingExpiry, func() {
		c.clearTyper(key)
		c.changed()
	}))
	c.changed()
}

// TypingIn returns who is typing in a conversation.
func (c *Chat) TypingIn(target string) (string, bool) {
	if target == "" {
		target = Group
	}
	name, ok := c.typers[target]
	return name, ok
}

func (c *Chat) clearTyper(key string) {
	if _, ok := c.typers[key]; !ok {
		return
	}
	delete(c.typers, key)
	c.timers.Stop("typer:" + key)
}

func typingKey(msg models.ChatMessage) string {
	if msg.IsGroup() {
		return Group
	}
	return msg.SenderID
}
