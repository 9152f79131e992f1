package conversation

import (
	"errors"
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/tokens"
)

// fixedCounter charges the same number of tokens for every message.
func fixedCounter(perMessage int) tokens.MessageCounter {
	return tokens.MessageCounterFunc(func(msgs []provider.Message, _ string) int {
		return len(msgs) * perMessage
	})
}

// runeCounter charges one token per rune of content.
var runeCounter = tokens.MessageCounterFunc(func(msgs []provider.Message, _ string) int {
	n := 0
	for _, m := range msgs {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
})

func contents(msgs []provider.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestTrimmed_PreambleOnly(t *testing.T) {
	conv := New(100)
	conv.InstallSystemPreamble("system-A")

	got, err := conv.Trimmed(fixedCounter(5), "m")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, provider.RoleSystem, got[0].Role)
	assert.Equal(t, "system-A", got[0].Content)
}

func TestTrimmed_EvictsOldestPairs(t *testing.T) {
	conv := New(20)
	conv.InstallSystemPreamble("preamble")
	for i := 1; i <= 3; i++ {
		conv.AppendUser(fmt.Sprintf("q%d", i))
		conv.AppendAssistant(fmt.Sprintf("a%d", i))
	}

	got, err := conv.Trimmed(fixedCounter(5), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"preamble", "a2", "q3", "a3"}, contents(got))
	assert.Equal(t, 3, conv.Evicted())
	assert.Equal(t, 4, conv.Len(), "evictions are permanent")
}

func TestTrimmed_StopsAsSoonAsItFits(t *testing.T) {
	conv := New(16)
	conv.InstallSystemPreamble("sys") // 3
	conv.AppendUser("aaaaaaaaaa")     // 10
	conv.AppendAssistant("bb")        // 2
	conv.AppendUser("cccc")           // 4

	got, err := conv.Trimmed(runeCounter, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"sys", "bb", "cccc"}, contents(got))
	assert.Equal(t, 1, conv.Evicted())
}

func TestTrimmed_PreambleExceedsBudget(t *testing.T) {
	conv := New(4)
	conv.InstallSystemPreamble("this preamble is far too long")

	got, err := conv.Trimmed(runeCounter, "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetUnsatisfiable)

	var be *BudgetError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 4, be.Budget)
	assert.Equal(t, 1, be.Messages)
	assert.Equal(t, []string{"this preamble is far too long"}, contents(got))
}

func TestTrimmed_LastMessageExceedsBudget(t *testing.T) {
	conv := New(10)
	conv.InstallSystemPreamble("sys")
	conv.AppendUser("old")
	conv.AppendUser("a question much longer than the budget")

	got, err := conv.Trimmed(runeCounter, "m")
	assert.ErrorIs(t, err, ErrBudgetUnsatisfiable)
	assert.Equal(t, []string{"sys", "a question much longer than the budget"}, contents(got))
	assert.Equal(t, 1, conv.Evicted())
}

func TestTrimmed_WithoutPreambleEvictsFromStart(t *testing.T) {
	conv := New(10)
	conv.AppendUser("first")
	conv.AppendAssistant("second")
	conv.AppendUser("third")

	got, err := conv.Trimmed(fixedCounter(5), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "third"}, contents(got))
	assert.False(t, conv.HasPreamble())
}

func TestTrimmed_LeadingSystemNoteIsProtected(t *testing.T) {
	conv := New(20)
	conv.AppendSystemNote("frame")
	conv.AppendUser("a")
	conv.AppendUser("b")

	got, err := conv.Trimmed(fixedCounter(10), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"frame", "b"}, contents(got))
	assert.False(t, conv.HasPreamble())
	assert.Equal(t, 1, conv.Evicted())
}

func TestTrimmed_SystemNotesAreEvictable(t *testing.T) {
	conv := New(15)
	conv.InstallSystemPreamble("preamble")
	conv.AppendSystemNote("note")
	conv.AppendUser("u1")
	conv.AppendUser("u2")

	got, err := conv.Trimmed(fixedCounter(5), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"preamble", "u1", "u2"}, contents(got))
}

func TestTrimmed_PreservesOrderWhenWithinBudget(t *testing.T) {
	conv := New(1000)
	conv.InstallSystemPreamble("sys")
	want := []string{"sys"}
	for i := 0; i < 20; i++ {
		text := fmt.Sprintf("message %02d", i)
		if i%2 == 0 {
			conv.AppendUser(text)
		} else {
			conv.AppendAssistant(text)
		}
		want = append(want, text)
	}

	got, err := conv.Trimmed(runeCounter, "m")
	require.NoError(t, err)
	assert.Equal(t, want, contents(got))
	assert.Equal(t, provider.RoleUser, got[1].Role)
	assert.Equal(t, provider.RoleAssistant, got[2].Role)
	assert.Zero(t, conv.Evicted())
}

func TestTrimmed_Converges(t *testing.T) {
	// For every budget that can hold the preamble and the newest message,
	// trimming succeeds, keeps the preamble and fits the budget.
	lengths := []int{7, 3, 12, 1, 9, 4, 6}
	const preamble = "preamble" // 8 runes
	last := lengths[len(lengths)-1]

	for budget := 8 + last; budget <= 60; budget++ {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			conv := New(budget)
			conv.InstallSystemPreamble(preamble)
			for i, n := range lengths {
				conv.AppendUser(fmt.Sprintf("%0*d", n, i))
			}

			got, err := conv.Trimmed(runeCounter, "m")
			require.NoError(t, err)
			assert.Equal(t, preamble, got[0].Content)
			assert.LessOrEqual(t, runeCounter.CountMessages(got, "m"), budget)
			assert.Equal(t, last, utf8.RuneCountInString(got[len(got)-1].Content))
		})
	}
}

func TestInstallSystemPreamble_Reseeds(t *testing.T) {
	conv := New(5)
	conv.InstallSystemPreamble("one")
	conv.AppendUser("hello")
	conv.AppendUser("world")
	_, _ = conv.Trimmed(fixedCounter(2), "m")
	require.NotZero(t, conv.Evicted())

	conv.InstallSystemPreamble("two")
	assert.True(t, conv.HasPreamble())
	assert.Equal(t, 1, conv.Len())
	assert.Zero(t, conv.Evicted())
	assert.Equal(t, []string{"two"}, contents(conv.Messages()))
}

func TestMessages_ReturnsCopy(t *testing.T) {
	conv := New(100)
	conv.InstallSystemPreamble("sys")
	msgs := conv.Messages()
	msgs[0].Content = "changed"

	assert.Equal(t, "sys", conv.Messages()[0].Content)
}

func TestBudgetError_Message(t *testing.T) {
	err := &BudgetError{Tokens: 30, Budget: 20, Messages: 2}
	assert.Equal(t,
		"conversation: token budget cannot be satisfied: 30 tokens in 2 messages exceeds budget of 20",
		err.Error())
}
