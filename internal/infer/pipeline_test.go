package infer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and fabricates the files the tools would write
type fakeRunner struct {
	t        *testing.T
	calls    [][]string
	stems    []string
	failTool string
	duration string
	peak     string
}

const defaultPeakOutput = "frame:0    pts:0       pts_time:0\nlavfi.astats.Overall.Peak_level=-3.1\n" +
	"frame:1    pts:1024    pts_time:0.02\nlavfi.astats.Overall.Peak_level=-6.4455\n"

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if name == f.failTool {
		return nil, errors.New(name + " failed: exit status 1")
	}

	switch name {
	case "ffmpeg":
		if args[len(args)-1] == "-" {
			if f.peak == "" {
				return []byte(defaultPeakOutput), nil
			}
			return []byte(f.peak), nil
		}
		f.touch(args[len(args)-1])
	case "demucs":
		outDir := args[indexOf(args, "-o")+1]
		model := args[indexOf(args, "-n")+1]
		for _, stem := range f.stems {
			f.touch(filepath.Join(outDir, model, "in", stem+".wav"))
		}
	case "ffprobe":
		return []byte(f.duration), nil
	}
	return nil, nil
}

func (f *fakeRunner) touch(path string) {
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte("RIFF"), 0o644))
}

func (f *fakeRunner) tools() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c[0])
	}
	return out
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		DemucsPath:       "demucs",
		DemucsModel:      "htdemucs",
		SampleRate:       44100,
		PitchFactor:      1.8,
		VocalGain:        1.0,
		InstrumentalGain: 0.9,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipeline_ProcessWithInstrumental(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{t: t, stems: []string{"vocals", "no_vocals"}, duration: "187.25\n"}
	p := NewPipeline(testPipelineConfig(), runner, testLogger())

	res, err := p.Process(context.Background(), dir, filepath.Join(dir, "in.any"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "output.wav"), res.OutputPath)
	assert.Equal(t, 187.25, res.DurationSec)
	assert.Equal(t, []string{"ffmpeg", "demucs", "ffmpeg", "ffmpeg", "ffmpeg", "ffmpeg", "ffprobe"}, runner.tools())

	convert := strings.Join(runner.calls[0], " ")
	assert.Contains(t, convert, "-ar 44100 -ac 1")

	separate := strings.Join(runner.calls[1], " ")
	assert.Contains(t, separate, "-n htdemucs --two-stems vocals")

	render := strings.Join(runner.calls[2], " ")
	assert.Contains(t, render, filepath.Join(dir, "htdemucs", "in", "vocals.wav"))
	assert.Contains(t, render, "asetrate=79380")
	assert.Contains(t, render, "vibrato=f=6")
	assert.NotContains(t, render, "dynaudnorm")

	measure := strings.Join(runner.calls[3], " ")
	assert.Contains(t, measure, filepath.Join(dir, "chicken_raw.wav"))
	assert.Contains(t, measure, "astats=metadata=1:reset=0")

	// the last overall peak (-6.4455 dBFS) is lifted to 0.95 linear
	normalize := strings.Join(runner.calls[4], " ")
	assert.Contains(t, normalize, "volume=6.00dB")
	assert.Contains(t, normalize, filepath.Join(dir, "chicken_vocal.wav"))

	mix := runner.calls[5]
	assert.Contains(t, mix, filepath.Join(dir, "htdemucs", "in", "no_vocals.wav"))
	assert.Contains(t, mix, "[0:a]volume=1[a0];[1:a]volume=0.9[a1];[a0][a1]amix=inputs=2:normalize=0")
}

func TestPipeline_ProcessVocalOnly(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{t: t, stems: []string{"vocals"}, duration: "10"}
	p := NewPipeline(testPipelineConfig(), runner, testLogger())

	res, err := p.Process(context.Background(), dir, filepath.Join(dir, "in.any"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chicken_vocal.wav"), res.OutputPath)
	assert.Equal(t, []string{"ffmpeg", "demucs", "ffmpeg", "ffmpeg", "ffmpeg", "ffprobe"}, runner.tools())
}

func TestPipeline_Failures(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		wantErr error
		errText string
	}{
		{
			name:    "no vocal stem",
			runner:  &fakeRunner{stems: []string{"no_vocals"}},
			wantErr: ErrSeparationFailed,
		},
		{
			name:    "demucs exits non-zero",
			runner:  &fakeRunner{failTool: "demucs"},
			wantErr: ErrSeparationFailed,
		},
		{
			name:    "conversion fails",
			runner:  &fakeRunner{failTool: "ffmpeg"},
			errText: "convert step",
		},
		{
			name:    "no peak measurement",
			runner:  &fakeRunner{stems: []string{"vocals"}, peak: "frame:0 pts:0\n"},
			errText: "failed to measure peak",
		},
		{
			name:    "unparseable duration",
			runner:  &fakeRunner{stems: []string{"vocals"}, duration: "N/A"},
			errText: "failed to parse duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.runner.t = t
			dir := t.TempDir()
			p := NewPipeline(testPipelineConfig(), tt.runner, testLogger())

			_, err := p.Process(context.Background(), dir, filepath.Join(dir, "in.any"))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.EqualError(t, err, "demucs failed")
			} else {
				assert.Contains(t, err.Error(), tt.errText)
			}
		})
	}
}

func TestFindStems(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"vocals.wav", "other.wav", "accompaniment.wav", "notes.txt"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "track"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "track", name), nil, 0o644))
	}

	vocal, inst, err := findStems(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "track", "vocals.wav"), vocal)
	assert.Equal(t, filepath.Join(dir, "track", "accompaniment.wav"), inst)

	vocal, inst, err = findStems(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, vocal)
	assert.Empty(t, inst)
}

func TestPipeline_NormalizeGainSilence(t *testing.T) {
	runner := &fakeRunner{t: t, peak: "lavfi.astats.Overall.Peak_level=-inf\n"}
	p := NewPipeline(testPipelineConfig(), runner, testLogger())

	gain, err := p.normalizeGain(context.Background(), "chicken_raw.wav")
	require.NoError(t, err)
	assert.Zero(t, gain)
}
