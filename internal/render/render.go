package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/timeline"
	"gopkg.in/yaml.v3"
)

const rule = "═══════════════════════════════════════════════════════════"

// Renderer prints reveal progress and writes flow reports.
// It is driven from the frame loop and is not safe for concurrent use.
type Renderer struct {
	out       io.Writer
	verbose   bool
	poseEvery int

	lastStage timeline.Stage
	frames    int
}

// NewRenderer creates a renderer writing to out.
// poseEvery > 0 prints the pose every poseEvery frames.
func NewRenderer(out io.Writer, verbose bool, poseEvery int) *Renderer {
	if out == nil {
		out = io.Discard
	}
	return &Renderer{out: out, verbose: verbose, poseEvery: poseEvery}
}

// RenderTransition prints one orchestrator state change
func (r *Renderer) RenderTransition(from, to string, errText string) {
	if errText != "" {
		fmt.Fprintf(r.out, "✗ %s → %s: %s\n", from, to, errText)
		return
	}
	if r.verbose || to == "done" {
		fmt.Fprintf(r.out, "• %s → %s\n", from, to)
	}
}

// RenderFrame prints stage changes and, when enabled, periodic poses
func (r *Renderer) RenderFrame(f timeline.Frame) {
	r.frames++

	if f.Stage != r.lastStage {
		r.lastStage = f.Stage
		if f.Stage != timeline.Dormant {
			fmt.Fprintf(r.out, "▸ %s\n", f.Stage)
		}
	}

	if r.poseEvery > 0 && r.frames%r.poseEvery == 0 && f.Stage != timeline.Dormant {
		fmt.Fprintln(r.out, FormatPose(f))
	}
}

// Frames returns how many frames were rendered
func (r *Renderer) Frames() int {
	return r.frames
}

// FormatPose renders a frame's pose on one line
func FormatPose(f timeline.Frame) string {
	p := f.Pose
	line := fmt.Sprintf("  %-14s t=%5.2fs platform y=%6.2f rot=%5.2f",
		f.Stage, f.Elapsed.Seconds(), p.Platform.Y, p.Platform.RotationY)
	if p.ItemVisible {
		line += fmt.Sprintf(" | item y=%5.2f rot=%5.2f scale=%4.2f", p.Item.Y, p.Item.RotationY, p.Item.Scale)
	}
	return line
}

// RenderReport writes report to path, choosing YAML for .yaml/.yml and JSON otherwise
func (r *Renderer) RenderReport(report *model.Report, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return r.RenderYAML(report, path)
	default:
		return r.RenderJSON(report, path)
	}
}

// RenderJSON writes report to path as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderYAML writes report to path as YAML
func (r *Renderer) RenderYAML(report *model.Report, path string) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderSummary prints a human-readable summary of the flow
func (r *Renderer) RenderSummary(report *model.Report) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, rule)
	fmt.Fprintln(r.out, "  Reveal Summary")
	fmt.Fprintln(r.out, rule)

	if report.FlowID != "" {
		fmt.Fprintf(r.out, "Flow:      %s\n", report.FlowID)
	}
	if report.Token != "" {
		fmt.Fprintf(r.out, "Token:     %s\n", report.Token)
	}
	if report.Identity != "" {
		fmt.Fprintf(r.out, "Identity:  %s\n", report.Identity)
	}
	fmt.Fprintf(r.out, "State:     %s (stage %s)\n", report.State, report.Stage)
	fmt.Fprintf(r.out, "Claim:     %s\n", DescribeClaim(report.Claim))
	if report.Duration > 0 {
		fmt.Fprintf(r.out, "Duration:  %s (%d frames)\n", report.Duration.Round(10*time.Millisecond), report.Frames)
	}
	if report.Error != "" {
		fmt.Fprintf(r.out, "Error:     [%s] %s\n", report.ErrorKind, report.Error)
	}

	fmt.Fprintln(r.out, rule)
	if report.Succeeded() {
		fmt.Fprintln(r.out, "✓ Item revealed")
	}
}

// DescribeClaim renders a claim result on one line
func DescribeClaim(c model.ClaimResult) string {
	switch c.StatusOrNone() {
	case model.ClaimConfirmed:
		s := fmt.Sprintf("confirmed item #%d", c.ItemID)
		if c.Item != nil {
			s += fmt.Sprintf(" %q (%s %s, %s)", c.Item.Name, c.Item.Rarity, c.Item.Rarity.Color(), c.Item.Kind)
		}
		if c.TxID != "" {
			s += " tx " + c.TxID
		}
		return s
	case model.ClaimRejected:
		return "rejected: " + string(c.Reason)
	default:
		return string(c.StatusOrNone())
	}
}
