package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Engine is the external audio capability the pipeline is built on: convert
// one file to the canonical format, and concatenate prepared files into one.
type Engine interface {
	Convert(ctx context.Context, src, dst string) error
	Concatenate(ctx context.Context, srcs []string, dst string) error
}

// FFmpegEngine shells out to ffmpeg. Conversion targets the configured
// codec and sample rate, mono; concatenation uses the concat demuxer with
// stream copy so byte-identical inputs produce byte-identical output.
type FFmpegEngine struct {
	Bin        string
	SampleRate int
	Codec      string
}

func NewFFmpegEngine(bin string, sampleRate int, codec string) *FFmpegEngine {
	return &FFmpegEngine{Bin: bin, SampleRate: sampleRate, Codec: codec}
}

func (e *FFmpegEngine) Convert(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, e.Bin,
		"-i", src,
		"-ar", strconv.Itoa(e.SampleRate),
		"-ac", "1",
		"-c:a", e.Codec,
		"-y",
		dst,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg convert failed: %w\noutput: %s", err, string(output))
	}
	return nil
}

func (e *FFmpegEngine) Concatenate(ctx context.Context, srcs []string, dst string) error {
	listPath := filepath.Join(filepath.Dir(dst), fmt.Sprintf("filelist-%s.txt", uuid.New().String()))

	var list strings.Builder
	for _, src := range srcs {
		// concat demuxer syntax: single quotes in paths escape as '\''
		escaped := strings.ReplaceAll(src, "'", `'\''`)
		fmt.Fprintf(&list, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, e.Bin,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		dst,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w\noutput: %s", err, string(output))
	}
	return nil
}

// supportedAudioExt lists the container formats ffmpeg can normalize.
var supportedAudioExt = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
	".aac":  true,
	".wma":  true,
}

// ValidateAudioFormat reports whether the filename carries a supported
// audio extension.
func ValidateAudioFormat(filename string) bool {
	return supportedAudioExt[strings.ToLower(filepath.Ext(filename))]
}
