package nlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDirectCommand(t *testing.T) {
	direct := []string{
		"open https://example.com",
		"click @e5",
		"  scroll down 500",
		"FIND role button click",
		"get url",
		"close",
	}
	for _, input := range direct {
		assert.True(t, IsDirectCommand(input), input)
	}

	natural := []string{
		"go to google",
		"please click the submit button",
		"what is on this page",
		"",
		"   ",
	}
	for _, input := range natural {
		assert.False(t, IsDirectCommand(input), input)
	}
}

func TestTranslateShortCircuitsDirectCommands(t *testing.T) {
	// The endpoint is unreachable on purpose: direct commands must never
	// hit the network.
	tr := New("http://127.0.0.1:1/v1", "test", "test-model")

	res, err := tr.Translate(context.Background(), "  open https://example.com  ", "")
	require.NoError(t, err)
	assert.Equal(t, "direct", res.Type)
	assert.Equal(t, "open https://example.com", res.Command)
	assert.Empty(t, res.Original)
}

func TestCleanCommand(t *testing.T) {
	cases := map[string]string{
		"open https://example.com":                      "open https://example.com",
		"  open https://example.com\n":                  "open https://example.com",
		"```\nopen https://example.com\n```":            "open https://example.com",
		"```bash\nopen https://example.com\n```":        "open https://example.com",
		"`click @e5`":                                   "click @e5",
		"```scroll down 500```":                         "scroll down 500",
		"":                                              "",
		"find role button click --name \"Submit\"":      "find role button click --name \"Submit\"",
	}
	for input, want := range cases {
		assert.Equal(t, want, CleanCommand(input), "input: %q", input)
	}
}
