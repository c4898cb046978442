package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	cases := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"unknown":  zerolog.InfoLevel,
	}
	for in, want := range cases {
		SetLevel(in)
		require.Equal(t, want, zerolog.GlobalLevel(), in)
	}
}

func TestSetOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "json")
	t.Cleanup(func() { SetFormat("console") })

	Log.Info().Str("customer_id", "c1").Msg("payment settled")

	assert.Contains(t, buf.String(), `"customer_id":"c1"`)
	assert.Contains(t, buf.String(), `"message":"payment settled"`)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeText(""))
	assert.Equal(t, "<5 chars>", SanitizeText("bread"))
	assert.Equal(t, "Ric...<12 chars>", SanitizeText("Rice 25kg x2"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "*******890", MaskPhone("+1 234-567-890"))
	assert.Equal(t, "**", MaskPhone("12"))
}
