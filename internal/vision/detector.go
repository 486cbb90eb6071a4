// Package vision connects the tracker to an external target detector.
//
// The detector itself is a black box. It produces zero or more bounding
// boxes per frame and the tracker only ever looks at their horizontal
// centers.
package vision

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

// Detector yields the detections of successive frames. Next returns io.EOF
// when the source is exhausted.
type Detector interface {
	Next(ctx context.Context) ([]geometry.Box, error)
}

type frameRecord struct {
	Boxes []geometry.Box `json:"boxes"`
}

// JSONLines reads one JSON object per line:
//
//	{"boxes":[{"x":10,"y":20,"w":80,"h":80}]}
//
// An empty "boxes" array is a frame without a target. Blank lines are
// skipped.
type JSONLines struct {
	scan  *bufio.Scanner
	frame int
}

// NewJSONLines reads frames from r, typically a pipe from a detector
// process or a recorded session file.
func NewJSONLines(r io.Reader) *JSONLines {
	return &JSONLines{scan: bufio.NewScanner(r)}
}

func (j *JSONLines) Next(ctx context.Context) ([]geometry.Box, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scan.Scan() {
			if err := j.scan.Err(); err != nil {
				return nil, fmt.Errorf("read detections: %w", err)
			}
			return nil, io.EOF
		}
		line := j.scan.Bytes()
		if len(line) == 0 {
			continue
		}
		j.frame++

		var rec frameRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("frame %d: %w", j.frame, err)
		}
		return rec.Boxes, nil
	}
}

// Frames returns the number of frames decoded so far.
func (j *JSONLines) Frames() int {
	return j.frame
}

// Script replays a fixed list of frames. Used by tests and the replay
// command once a recording has been loaded.
type Script struct {
	frames [][]geometry.Box
	pos    int
}

func NewScript(frames [][]geometry.Box) *Script {
	return &Script{frames: frames}
}

func (s *Script) Next(ctx context.Context) ([]geometry.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// ReadAll loads every frame of d into a Script.
func ReadAll(ctx context.Context, d Detector) (*Script, error) {
	var frames [][]geometry.Box
	for {
		boxes, err := d.Next(ctx)
		if err == io.EOF {
			return NewScript(frames), nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, boxes)
	}
}

// Len returns the number of frames in the script.
func (s *Script) Len() int {
	return len(s.frames)
}
