package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/lexflow/lexflow/internal/capability"
	"github.com/lexflow/lexflow/internal/stream"
	"github.com/lexflow/lexflow/pkg/models"
)

// progressPrinter renders the NDJSON event stream as human-readable
// progress lines. It implements io.Writer so it can stand in for the
// raw stream sink.
type progressPrinter struct {
	out io.Writer
	buf bytes.Buffer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

// Write buffers incoming bytes and renders each complete line.
func (p *progressPrinter) Write(b []byte) (int, error) {
	p.buf.Write(b)
	for {
		line, err := p.buf.ReadBytes('\n')
		if err != nil {
			// Partial line; put it back and wait for more.
			p.buf.Write(line)
			break
		}
		p.render(line)
	}
	return len(b), nil
}

func (p *progressPrinter) render(line []byte) {
	var ev stream.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return
	}

	switch ev.Type {
	case stream.EventProgress:
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		var data stream.ProgressData
		if err := json.Unmarshal(payload, &data); err != nil {
			return
		}
		p.renderProgress(data)
	case stream.EventSources:
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		var citations []capability.Citation
		if err := json.Unmarshal(payload, &citations); err != nil {
			return
		}
		for _, c := range citations {
			fmt.Fprintf(p.out, "    %s %s\n", color.CyanString("•"), c.Title)
		}
	}
}

func (p *progressPrinter) renderProgress(data stream.ProgressData) {
	label := string(data.AgentType)
	switch data.Status {
	case models.TaskStatusPending:
		fmt.Fprintf(p.out, "%s %s queued\n", color.YellowString("○"), label)
	case models.TaskStatusRunning:
		step := data.Step
		if step == "" {
			step = "running"
		}
		fmt.Fprintf(p.out, "%s %s %3d%% %s\n", color.BlueString("◐"), label, data.Progress, step)
	case models.TaskStatusCompleted:
		fmt.Fprintf(p.out, "%s %s done\n", color.GreenString("✓"), label)
	case models.TaskStatusFailed:
		fmt.Fprintf(p.out, "%s %s failed: %s\n", color.RedString("✗"), label, data.Error)
	case models.TaskStatusCancelled:
		fmt.Fprintf(p.out, "%s %s cancelled\n", color.YellowString("⚠"), label)
	}
}
