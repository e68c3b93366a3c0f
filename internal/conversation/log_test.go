package conversation

import (
	"testing"

	"siteplan/internal/tester"
)

func TestOptionsConsumedExactlyOnce(t *testing.T) {
	var l Log
	l = l.AppendBot("What is the project purpose?", "Residential", "Commercial", "Mixed-Use")
	l = l.AppendUser("Residential")

	l, opts := l.ConsumeOptions()
	tester.Eq(t, opts, []string{"Residential", "Commercial", "Mixed-Use"})

	l, opts = l.ConsumeOptions()
	tester.True(t, opts == nil, "second consume yields nothing")

	// The bot message itself stays in the log, just without options.
	tester.Eq(t, len(l.Messages), 2)
	tester.True(t, l.Messages[0].Options == nil, "options cleared on the message")
}

func TestOnlyLatestBotMessageCarriesOptions(t *testing.T) {
	var l Log
	l = l.AppendBot("purpose?", "Residential", "Commercial")
	l = l.AppendBot("priority?", "Balanced Layout", "Max Lots")

	tester.True(t, l.Messages[0].Options == nil, "earlier options dropped")
	tester.Eq(t, l.Messages[1].Options, []string{"Balanced Layout", "Max Lots"})
}

func TestMonotonicIDs(t *testing.T) {
	var l Log
	l = l.AppendBot("a")
	l = l.AppendUser("b")
	l = l.AppendBot("c")
	tester.Eq(t, l.Messages[0].ID, int64(0))
	tester.Eq(t, l.Messages[1].ID, int64(1))
	tester.Eq(t, l.Messages[2].ID, int64(2))
	tester.Eq(t, l.NextID, int64(3))
}

func TestThinkingPlaceholderRemovedOnFailure(t *testing.T) {
	var l Log
	l = l.AppendUser("make lots bigger")
	before := len(l.Messages)

	l = l.PushThinking("Thinking...")
	tester.Eq(t, len(l.Messages), before+1)

	l = l.PopThinking()
	tester.Eq(t, len(l.Messages), before, "log restored to pre-call state")
}

func TestPopThinkingIgnoresRealMessages(t *testing.T) {
	var l Log
	l = l.AppendBot("done")
	l = l.PopThinking()
	tester.Eq(t, len(l.Messages), 1)
}

func TestResolveThinking(t *testing.T) {
	var l Log
	l = l.PushThinking("Thinking...")
	l = l.ResolveThinking("Here is my recommendation.")
	tester.Eq(t, len(l.Messages), 1)
	tester.Eq(t, l.Messages[0].Text, "Here is my recommendation.")
	tester.False(t, l.Messages[0].Thinking)
}

func TestTranscriptSkipsThinking(t *testing.T) {
	var l Log
	l = l.AppendBot("hello")
	l = l.AppendUser("hi")
	l = l.PushThinking("...")
	tester.Eq(t, l.Transcript(), "bot: hello\nuser: hi\n")
}
