package pipeline

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Layer is one completed build step parsed from the image builder's plain
// progress output.
type Layer struct {
	Stage       string // Dockerfile stage name, "" for single-stage builds
	Step        string // "2/7"
	Instruction string // "FROM", "COPY", "RUN", ...
	Detail      string // truncated instruction arguments
	Cached      bool
	Duration    time.Duration
	Image       string // base image for FROM steps, digest stripped
}

const layerDetailMax = 60

// Patterns for buildx --progress=plain lines.
var (
	layerStartRe  = regexp.MustCompile(`^#(\d+) \[([^\]]*?) (\d+/\d+)\] (\w+)\s*(.*)`)
	layerInternRe = regexp.MustCompile(`^#\d+ \[internal\]`)
	layerCachedRe = regexp.MustCompile(`^#(\d+) CACHED`)
	layerDoneRe   = regexp.MustCompile(`^#(\d+) DONE (\d+\.?\d*)s`)
	fromImageRe   = regexp.MustCompile(`FROM\s+(\S+?)(?:@sha256:[a-f0-9]+)?(?:\s+AS\s+\S+)?$`)
)

// ParseLayers extracts the meaningful build steps from captured builder
// output. Internal steps (context load, metadata, export) are dropped;
// the rest come back in step order with cache state and timing.
func ParseLayers(out string) []Layer {
	layers := make(map[int]*Layer)
	done := make(map[int]bool)

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || layerInternRe.MatchString(line) {
			continue
		}

		if m := layerStartRe.FindStringSubmatch(line); m != nil {
			step, _ := strconv.Atoi(m[1])
			l := &Layer{Stage: m[2], Step: m[3], Instruction: m[4], Detail: m[5]}
			if l.Instruction == "FROM" {
				if fm := fromImageRe.FindStringSubmatch("FROM " + l.Detail); fm != nil {
					l.Image = fm[1]
				}
			}
			if len(l.Detail) > layerDetailMax {
				l.Detail = l.Detail[:layerDetailMax-3] + "..."
			}
			layers[step] = l
			continue
		}

		if m := layerCachedRe.FindStringSubmatch(line); m != nil {
			step, _ := strconv.Atoi(m[1])
			if l, ok := layers[step]; ok {
				l.Cached = true
				done[step] = true
			}
			continue
		}

		if m := layerDoneRe.FindStringSubmatch(line); m != nil {
			step, _ := strconv.Atoi(m[1])
			if l, ok := layers[step]; ok {
				secs, _ := strconv.ParseFloat(m[2], 64)
				l.Duration = time.Duration(secs * float64(time.Second))
				done[step] = true
			}
			continue
		}
	}

	steps := make([]int, 0, len(layers))
	for step := range layers {
		if done[step] {
			steps = append(steps, step)
		}
	}
	sort.Ints(steps)

	events := make([]Layer, 0, len(steps))
	for _, step := range steps {
		events = append(events, *layers[step])
	}
	return events
}

// Label renders a layer for the stage table. FROM steps show the base
// image; everything else shows the instruction and its arguments.
func (l Layer) Label() string {
	if l.Instruction == "FROM" && l.Image != "" {
		return l.Image
	}
	if l.Detail != "" {
		return l.Instruction + " " + l.Detail
	}
	return l.Instruction
}

// Timing renders a layer's cost: "cached" for cache hits, otherwise the
// duration.
func (l Layer) Timing() string {
	switch {
	case l.Cached:
		return "cached"
	case l.Duration >= time.Minute:
		return strconv.FormatFloat(l.Duration.Minutes(), 'f', 1, 64) + "m"
	case l.Duration > 0:
		return strconv.FormatFloat(l.Duration.Seconds(), 'f', 1, 64) + "s"
	}
	return ""
}
