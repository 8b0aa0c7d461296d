// Copyright 2026 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stackgraph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	pprofprofile "github.com/google/pprof/profile"

	"github.com/parca-dev/stackgraph/pkg/calltree"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

type CallTreeCmd struct {
	ThreadFlags `embed:""`

	Depth int  `default:"8" help:"Maximum depth of printed call nodes."`
	Draw  bool `help:"Draw the tree instead of printing a table."`
}

func (c *CallTreeCmd) Run(ctx context.Context, g *Globals) error {
	s, stack, invert, err := g.threadSession(ctx, c.ThreadFlags)
	if err != nil {
		return err
	}
	tree, err := s.CallTree(ctx, c.Thread, stack, invert)
	if err != nil {
		return err
	}
	if c.Draw {
		return DrawCallTree(g.Out, tree, c.Depth)
	}
	PrintCallTree(g.Out, tree, c.Depth)
	return nil
}

type StackTimingCmd struct {
	ThreadFlags `embed:""`
}

func (c *StackTimingCmd) Run(ctx context.Context, g *Globals) error {
	s, stack, _, err := g.threadSession(ctx, c.ThreadFlags)
	if err != nil {
		return err
	}
	info, err := s.CallNodeInfo(ctx, c.Thread, stack)
	if err != nil {
		return err
	}
	t, err := s.Thread(ctx, c.Thread, stack)
	if err != nil {
		return err
	}
	timing, err := s.StackTiming(ctx, c.Thread, stack)
	if err != nil {
		return err
	}
	PrintStackTiming(g.Out, t, info, timing)
	return nil
}

type TransformsCmd struct {
	Stack   string `arg:"" help:"URL encoded transform stack, for example f-combined-000g4~mf-3."`
	Profile string `help:"Profile used to label the transforms."`
	Thread  int    `short:"t" default:"0" help:"Index of the thread used for labels."`
}

func (c *TransformsCmd) Run(ctx context.Context, g *Globals) error {
	stack, err := transform.Parse(c.Stack)
	if err != nil {
		return err
	}

	var labels []string
	if c.Profile != "" {
		s, _, _, err := g.threadSession(ctx, ThreadFlags{Profile: c.Profile, Thread: c.Thread})
		if err != nil {
			return err
		}
		t, err := s.Thread(ctx, c.Thread, stack)
		if err != nil {
			return err
		}
		labels = transform.Labels(t, stack)[1:]
	}
	PrintTransforms(g.Out, stack, labels)
	return nil
}

type UpgradeCmd struct {
	Input  string `arg:"" type:"existingfile" help:"Profile to upgrade."`
	Output string `short:"o" default:"-" help:"Output file, - for stdout."`
}

func (c *UpgradeCmd) Run(g *Globals) error {
	p, err := profile.Open(c.Input)
	if err != nil {
		return err
	}
	return writeProfile(g, c.Output, p)
}

type ImportPprofCmd struct {
	Input       string `arg:"" type:"existingfile" help:"pprof profile to convert."`
	SampleIndex int    `default:"-1" help:"Index of the sample type used as weight. Defaults to the last one."`
	Output      string `short:"o" default:"-" help:"Output file, - for stdout."`
}

func (c *ImportPprofCmd) Run(g *Globals) error {
	f, err := os.Open(c.Input)
	if err != nil {
		return err
	}
	defer f.Close()

	pp, err := pprofprofile.Parse(f)
	if err != nil {
		return fmt.Errorf("parse pprof profile: %w", err)
	}
	idx := c.SampleIndex
	if idx < 0 {
		idx = len(pp.SampleType) - 1
	}
	p, err := profile.FromPprof(pp, idx)
	if err != nil {
		return err
	}
	return writeProfile(g, c.Output, p)
}

func writeProfile(g *Globals, output string, p *profile.Profile) error {
	buf := &bytes.Buffer{}
	if err := profile.Encode(buf, p); err != nil {
		return err
	}
	if err := writeOutput(g.Out, output, buf.Bytes()); err != nil {
		return err
	}
	level.Info(g.Logger).Log("msg", "wrote profile", "output", output, "size", humanize.Bytes(uint64(buf.Len())), "threads", len(p.Threads))
	return nil
}

type ExportArrowCmd struct {
	ThreadFlags `embed:""`

	Output string `short:"o" required:"" help:"Output file, - for stdout."`
}

func (c *ExportArrowCmd) Run(ctx context.Context, g *Globals) error {
	s, stack, invert, err := g.threadSession(ctx, c.ThreadFlags)
	if err != nil {
		return err
	}
	tree, err := s.CallTree(ctx, c.Thread, stack, invert)
	if err != nil {
		return err
	}
	buf, err := calltree.ArrowIPC(memory.DefaultAllocator, tree)
	if err != nil {
		return err
	}
	if err := writeOutput(g.Out, c.Output, buf); err != nil {
		return err
	}
	level.Info(g.Logger).Log("msg", "wrote call tree", "output", c.Output, "size", humanize.Bytes(uint64(len(buf))), "nodes", tree.Info().Table().Len())
	return nil
}

func writeOutput(stdout io.Writer, output string, b []byte) error {
	if output == "-" {
		_, err := stdout.Write(b)
		return err
	}
	return os.WriteFile(output, b, 0o644)
}
