package conversation

import "strings"

// Sender identifies who produced a message.
type Sender string

const (
	SenderBot  Sender = "bot"
	SenderUser Sender = "user"
)

// Message is one turn in the conversation log. Only the most recent bot
// message may carry Options; they are consumed exactly once when the user
// responds.
type Message struct {
	ID      int64    `json:"id"`
	Sender  Sender   `json:"sender"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`

	// Thinking marks the speculative placeholder inserted before a
	// capability call; it is removed if the call fails and is never
	// persisted with options.
	Thinking bool `json:"thinking,omitempty"`
}

// Log is the ordered sequence of exchanged messages. It is a value type
// owned by the session; the state machine is the only mutator.
type Log struct {
	Messages []Message `json:"messages"`
	NextID   int64     `json:"next_id"`
}

func (l Log) clone() Log {
	out := l
	out.Messages = append([]Message(nil), l.Messages...)
	return out
}

// AppendBot appends a bot message, optionally carrying selectable options.
// Any options still pending on an earlier bot message are dropped so that
// at most the latest bot message is selectable.
func (l Log) AppendBot(text string, options ...string) Log {
	out := l.clone()
	for i := range out.Messages {
		out.Messages[i].Options = nil
	}
	out.Messages = append(out.Messages, Message{
		ID:      out.NextID,
		Sender:  SenderBot,
		Text:    strings.TrimSpace(text),
		Options: append([]string(nil), options...),
	})
	out.NextID++
	return out
}

// AppendUser appends a user message.
func (l Log) AppendUser(text string) Log {
	out := l.clone()
	out.Messages = append(out.Messages, Message{
		ID:     out.NextID,
		Sender: SenderUser,
		Text:   strings.TrimSpace(text),
	})
	out.NextID++
	return out
}

// ConsumeOptions clears the options of the latest bot message and returns
// them. Earlier messages are left untouched.
func (l Log) ConsumeOptions() (Log, []string) {
	out := l.clone()
	for i := len(out.Messages) - 1; i >= 0; i-- {
		if out.Messages[i].Sender != SenderBot {
			continue
		}
		opts := out.Messages[i].Options
		out.Messages[i].Options = nil
		return out, opts
	}
	return out, nil
}

// PushThinking appends the speculative placeholder shown while a capability
// call is in flight.
func (l Log) PushThinking(text string) Log {
	out := l.clone()
	out.Messages = append(out.Messages, Message{
		ID:       out.NextID,
		Sender:   SenderBot,
		Text:     strings.TrimSpace(text),
		Thinking: true,
	})
	out.NextID++
	return out
}

// PopThinking removes the trailing placeholder, restoring the log to its
// pre-call state. It is a no-op when the last message is a real one.
func (l Log) PopThinking() Log {
	out := l.clone()
	n := len(out.Messages)
	if n > 0 && out.Messages[n-1].Thinking {
		out.Messages = out.Messages[:n-1]
	}
	return out
}

// ResolveThinking replaces the trailing placeholder with a real bot message.
func (l Log) ResolveThinking(text string) Log {
	return l.PopThinking().AppendBot(text)
}

// Latest returns the most recent message, if any.
func (l Log) Latest() (Message, bool) {
	if len(l.Messages) == 0 {
		return Message{}, false
	}
	return l.Messages[len(l.Messages)-1], true
}

// Transcript renders the log as plain text for use as adapter context.
func (l Log) Transcript() string {
	var b strings.Builder
	for _, m := range l.Messages {
		if m.Thinking {
			continue
		}
		b.WriteString(string(m.Sender))
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}
