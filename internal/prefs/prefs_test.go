package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Formats(t *testing.T) {
	cases := map[string]string{
		"p.yaml": "selected_model: TinyLlama 1.1B\nremote:\n  url: http://h:8080\n  api_key: k\npersona:\n  personality: Sarcastic\n  intensity: 9\n",
		"p.json": `{"selected_model":"TinyLlama 1.1B","remote":{"url":"http://h:8080","api_key":"k"},"persona":{"personality":"Sarcastic","intensity":9}}`,
		"p.toml": "selected_model = \"TinyLlama 1.1B\"\n[remote]\nurl = \"http://h:8080\"\napi_key = \"k\"\n[persona]\npersonality = \"Sarcastic\"\nintensity = 9\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := Parse(name, []byte(body))
			require.NoError(t, err)
			assert.Equal(t, "TinyLlama 1.1B", p.SelectedModel)
			assert.True(t, p.Remote.Configured())
			assert.Equal(t, "Sarcastic", p.Persona.Personality)
			assert.Equal(t, 9, p.Persona.Intensity)
			assert.Equal(t, 5, p.Persona.Verbosity, "unset scales default to neutral")
			assert.Equal(t, "Neutral", p.Persona.Mood)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse("p.ini", []byte("x"))
	require.Error(t, err)
	_, err = Parse("p.yaml", []byte("persona:\n  humor: 11\n"))
	require.Error(t, err)
	_, err = Parse("p.yaml", []byte("remote:\n  url: not a url\n"))
	require.Error(t, err)
}

func TestStatic_Preamble(t *testing.T) {
	s := NewStatic(Defaults())
	assert.Contains(t, s.Preamble(), "You are an AI assistant.")
	assert.Empty(t, s.SelectedModel())
	assert.False(t, s.RemoteEndpoint().Configured())
}

func TestOpenFile_MissingUsesDefaults(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "prefs.yaml"), zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, f.SelectedModel())
	assert.Equal(t, Defaults(), f.Get())
}

func TestOpenFile_BadFileFails(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(p, []byte("selected_model: [unterminated"), 0o644))
	_, err := OpenFile(p, zerolog.Nop())
	require.Error(t, err)
}

func TestFile_WatchReloads(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(p, []byte("selected_model: A\n"), 0o644))
	f, err := OpenFile(p, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "A", f.SelectedModel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan Preferences, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.Watch(ctx, func(p Preferences) {
			select {
			case changed <- p:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte("selected_model: B\n"), 0o644))

	// A write may surface as several events; wait for the final content.
	deadline := time.After(3 * time.Second)
	for seen := false; !seen; {
		select {
		case got := <-changed:
			seen = got.SelectedModel == "B"
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
	assert.Equal(t, "B", f.SelectedModel())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
