// Package ffmpeg wraps the external FFmpeg binary used for live capture,
// segment finalization, and lossless concatenation.
//
// The binary is treated as a black box with a fixed command-line contract:
// arguments, a stdin control channel (the "q" keystroke), a textual
// diagnostic stream on stderr, and an exit code.
package ffmpeg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MicroDaWay/bilidash/internal/util"
)

// BinaryEnvVar overrides FFmpeg binary auto-detection.
const BinaryEnvVar = "BILIDASH_FFMPEG_BINARY"

// ErrBinaryNotFound indicates the FFmpeg binary could not be located.
// This is a packaging/configuration problem, not a runtime one; callers
// must not retry.
var ErrBinaryNotFound = errors.New("ffmpeg binary not found")

// Client locates the FFmpeg binary and constructs commands against it.
type Client struct {
	binary string
}

// NewClient resolves the FFmpeg binary and returns a client.
// binaryPath, when non-empty, is used verbatim; otherwise the binary is
// auto-detected via BinaryEnvVar, the working directory, and PATH.
func NewClient(binaryPath string) (*Client, error) {
	if binaryPath != "" {
		return &Client{binary: binaryPath}, nil
	}
	path, err := util.FindBinary("ffmpeg", BinaryEnvVar)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBinaryNotFound, err)
	}
	return &Client{binary: path}, nil
}

// Binary returns the resolved FFmpeg binary path.
func (c *Client) Binary() string {
	return c.binary
}

// Capture builds the live-capture command: pull the playlist with automatic
// reconnection and stream-copy it into a raw MPEG-TS segment. Verbose
// logging is suppressed but periodic stats are kept so the diagnostic stream
// stays line-oriented.
func (c *Client) Capture(playlistURL, outputPath string) *Command {
	return NewCommandBuilder(c.binary).
		LogLevel("warning").
		Stats().
		Overwrite().
		Reconnect().
		InputArgs("-fflags", "+genpts").
		Input(playlistURL).
		OutputArgs("-c", "copy", "-f", "mpegts").
		Output(outputPath).
		Build()
}

// Finalize builds the finalize command: stream-copy a raw transport-stream
// segment into an MP4 optimized for progressive playback.
func (c *Client) Finalize(rawPath, finalizedPath string) *Command {
	return NewCommandBuilder(c.binary).
		LogLevel("error").
		Overwrite().
		Input(rawPath).
		OutputArgs("-c", "copy", "-movflags", "+faststart").
		Output(finalizedPath).
		Build()
}

// Concat builds the concatenation command: manifest-driven lossless merge of
// finalized segments.
func (c *Client) Concat(manifestPath, outputPath string) *Command {
	return NewCommandBuilder(c.binary).
		LogLevel("error").
		Overwrite().
		InputArgs("-f", "concat", "-safe", "0").
		Input(manifestPath).
		OutputArgs("-c", "copy").
		Output(outputPath).
		Build()
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(binary string) *CommandBuilder {
	return &CommandBuilder{
		binary:   binary,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// Stats enables periodic progress stats output.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// Overwrite enables unconditional output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Reconnect enables automatic reconnection for network streams with a
// bounded retry delay.
func (b *CommandBuilder) Reconnect() *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5")
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the argument list.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
		Input:  b.input,
		Output: b.output,
	}
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}
