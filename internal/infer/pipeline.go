package infer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrSeparationFailed is returned when demucs produced no vocal stem
var ErrSeparationFailed = errors.New("demucs failed")

// peakTarget is the linear sample peak of the rendered vocal
const peakTarget = 0.95

const peakLevelKey = "lavfi.astats.Overall.Peak_level"

// instrumental stem names, most preferred first
var instrumentalStems = []string{"no_vocals", "accompaniment", "other"}

// PipelineConfig holds the tool paths and mix settings
type PipelineConfig struct {
	FFmpegPath       string
	FFprobePath      string
	DemucsPath       string
	DemucsModel      string
	SampleRate       int
	PitchFactor      float64
	VocalGain        float64
	InstrumentalGain float64
}

// Result is a rendered song on local disk
type Result struct {
	OutputPath  string
	DurationSec float64
}

// Pipeline turns a song into its chicken rendition with ffmpeg and demucs
type Pipeline struct {
	cfg    PipelineConfig
	runner CommandRunner
	logger *slog.Logger
}

// NewPipeline creates a Pipeline
func NewPipeline(cfg PipelineConfig, runner CommandRunner, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, runner: runner, logger: logger}
}

// Process renders inputPath inside dir, which the caller owns and removes
func (p *Pipeline) Process(ctx context.Context, dir, inputPath string) (*Result, error) {
	logger := p.logger.With(slog.String("dir", filepath.Base(dir)))

	inWav := filepath.Join(dir, "in.wav")
	if err := p.step(ctx, logger, "convert", p.cfg.FFmpegPath,
		"-y", "-i", inputPath,
		"-ar", strconv.Itoa(p.cfg.SampleRate), "-ac", "1",
		inWav,
	); err != nil {
		return nil, err
	}

	if err := p.step(ctx, logger, "separate", p.cfg.DemucsPath,
		"-n", p.cfg.DemucsModel, "--two-stems", "vocals", "-o", dir, inWav,
	); err != nil {
		logger.Error("Demucs failed", slog.String("error", err.Error()))
		return nil, ErrSeparationFailed
	}

	vocal, inst, err := findStems(filepath.Join(dir, p.cfg.DemucsModel))
	if err != nil {
		return nil, err
	}
	if vocal == "" {
		return nil, ErrSeparationFailed
	}

	raw := filepath.Join(dir, "chicken_raw.wav")
	if err := p.step(ctx, logger, "render", p.cfg.FFmpegPath,
		"-y", "-i", vocal,
		"-af", p.chickenFilter(),
		"-ac", "1", "-c:a", "pcm_f32le",
		raw,
	); err != nil {
		return nil, err
	}

	gain, err := p.normalizeGain(ctx, raw)
	if err != nil {
		return nil, err
	}

	chicken := filepath.Join(dir, "chicken_vocal.wav")
	if err := p.step(ctx, logger, "normalize", p.cfg.FFmpegPath,
		"-y", "-i", raw,
		"-af", "volume="+strconv.FormatFloat(gain, 'f', 2, 64)+"dB",
		"-ac", "1", "-c:a", "pcm_s16le",
		chicken,
	); err != nil {
		return nil, err
	}

	out := chicken
	if inst != "" {
		out = filepath.Join(dir, "output.wav")
		if err := p.step(ctx, logger, "mix", p.cfg.FFmpegPath,
			"-y", "-i", chicken, "-i", inst,
			"-filter_complex", p.mixFilter(),
			out,
		); err != nil {
			return nil, err
		}
	}

	duration, err := p.duration(ctx, out)
	if err != nil {
		return nil, err
	}

	return &Result{OutputPath: out, DurationSec: duration}, nil
}

func (p *Pipeline) step(ctx context.Context, logger *slog.Logger, name, tool string, args ...string) error {
	start := time.Now()
	if _, err := p.runner.Run(ctx, tool, args...); err != nil {
		return fmt.Errorf("%s step: %w", name, err)
	}
	logger.Debug("Pipeline step finished", slog.String("step", name), slog.Duration("elapsed", time.Since(start)))
	return nil
}

// chickenFilter raises the pitch, adds a 6 Hz wobble and soft clips the vocal stem
func (p *Pipeline) chickenFilter() string {
	sr := p.cfg.SampleRate
	return fmt.Sprintf(
		"asetrate=%d,aresample=%d,atempo=%s,vibrato=f=6:d=0.5,asoftclip=type=tanh",
		int(float64(sr)*p.cfg.PitchFactor), sr, formatFloat(1/p.cfg.PitchFactor),
	)
}

func (p *Pipeline) mixFilter() string {
	return fmt.Sprintf("[0:a]volume=%s[a0];[1:a]volume=%s[a1];[a0][a1]amix=inputs=2:normalize=0",
		formatFloat(p.cfg.VocalGain), formatFloat(p.cfg.InstrumentalGain))
}

// normalizeGain measures the overall sample peak of path and returns the gain
// in dB that brings it to peakTarget. Silence gets no gain.
func (p *Pipeline) normalizeGain(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, p.cfg.FFmpegPath,
		"-v", "error", "-i", path,
		"-af", "astats=metadata=1:reset=0,ametadata=mode=print:key="+peakLevelKey+":file=-",
		"-f", "null", "-",
	)
	if err != nil {
		return 0, fmt.Errorf("measure step: %w", err)
	}

	var peak string
	for _, line := range strings.Split(string(out), "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), peakLevelKey+"="); ok {
			peak = v
		}
	}
	if peak == "" {
		return 0, fmt.Errorf("failed to measure peak of %s", filepath.Base(path))
	}

	peakDB, err := strconv.ParseFloat(peak, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse peak level %q: %w", peak, err)
	}
	if math.IsInf(peakDB, 0) || math.IsNaN(peakDB) {
		return 0, nil
	}
	return 20*math.Log10(peakTarget) - peakDB, nil
}

func (p *Pipeline) duration(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, p.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe step: %w", err)
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

// findStems walks the demucs model directory for the vocal and instrumental stems
func findStems(modelDir string) (vocal, instrumental string, err error) {
	found := map[string]string{}
	err = filepath.WalkDir(modelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".wav" {
			return nil
		}
		found[strings.TrimSuffix(d.Name(), ".wav")] = path
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("failed to scan stems: %w", err)
	}

	for _, name := range instrumentalStems {
		if path, ok := found[name]; ok {
			instrumental = path
			break
		}
	}
	return found["vocals"], instrumental, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
