package debug_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/promptls/pkg/debug"
)

func TestSplitFuncName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPkg  string
		wantFunc string
	}{
		{
			name:     "plain function",
			input:    "github.com/walteh/promptls/pkg/semtok.EncodeLine",
			wantPkg:  "github.com/walteh/promptls/pkg/semtok",
			wantFunc: "EncodeLine",
		},
		{
			name:     "pointer method",
			input:    "github.com/walteh/promptls/pkg/lsp.(*Server).Hover",
			wantPkg:  "github.com/walteh/promptls/pkg/lsp",
			wantFunc: "(*Server).Hover",
		},
		{
			name:     "closure",
			input:    "main.main.func1",
			wantPkg:  "main",
			wantFunc: "main.func1",
		},
		{
			name:     "no dot",
			input:    "weird",
			wantPkg:  "weird",
			wantFunc: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, fn := debug.SplitFuncName(tt.input)
			assert.Equal(t, tt.wantPkg, pkg)
			assert.Equal(t, tt.wantFunc, fn)
		})
	}
}

func TestFormatCaller(t *testing.T) {
	got := debug.FormatCaller("github.com/walteh/promptls/pkg/hover", "/src/pkg/hover/hover.go", 42, false)
	assert.Equal(t, "github.com/walteh/promptls/pkg/hover:hover.go:42", got)
}

func TestHooksAddFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).
		Hook(debug.CustomTimeHook{}).
		Hook(debug.CustomCallerHook{})

	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.NotEmpty(t, entry["time"])

	caller, ok := entry["caller"].(string)
	require.True(t, ok, "caller should be a string")
	assert.True(t, strings.Contains(caller, "debug_test.go:"), "caller %q should point at the test file", caller)
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := debug.NewLogger(buf, zerolog.WarnLevel, false)

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
