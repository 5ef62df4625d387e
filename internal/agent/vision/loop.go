// This file holds the repeated-action and position+click cycle detectors:
// coarse position bucketing so bbox jitter still counts as repetition,
// and alternating position->click cycle detection that immediate-repeat
// checks alone would miss.
package vision

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// positionBucketSize is the bucket edge length, in 0-1000 normalized
	// units, used to group near-identical positioning targets.
	positionBucketSize = 40
	// autoClickAfterRepeatPositioningThreshold triggers an automatic click
	// once the same positioning target has been requested this many times
	// in a row without an intervening click.
	autoClickAfterRepeatPositioningThreshold = 2
	// clickCycleLoopStopThreshold stops the engine once a
	// position->click pair repeats this many times in a row.
	clickCycleLoopStopThreshold = 4
)

var positioningTools = map[string]bool{
	"go_to_element":   true,
	"crop_and_search": true,
}

var clickToolToType = map[string]ClickType{
	"click_left_click":        ClickLeft,
	"click_double_left_click": ClickDouble,
	"click_right_click":       ClickRight,
}

var clickTypeToTool = map[ClickType]string{
	ClickLeft:   "click_left_click",
	ClickDouble: "click_double_left_click",
	ClickRight:  "click_right_click",
}

// toolMetadataKeys are argument keys that carry display metadata rather
// than positional/action data, excluded from action signatures so the
// same display caption does not defeat repeat detection.
var toolMetadataKeys = map[string]bool{
	"status_text":        true,
	"target_description": true,
}

// actionSignature is an order-independent fingerprint of one tool call,
// used to detect immediate repeats.
type actionSignature struct {
	name string
	flat string
}

// toNorm0to1000 scales a ratio-space coordinate (0-1) into 0-1000 space and
// returns any other value unchanged, mirroring `_to_norm_0_1000`.
func toNorm0to1000(v float64) float64 {
	if v >= 0.0 && v <= 1.0 {
		return v * 1000.0
	}
	return v
}

// positionBucket coarsens a positioning tool's bounding-box args into a
// (bucketX, bucketY) pair so small bbox jitter still counts as the same
// target.
func positionBucket(args map[string]any) (int, int, bool) {
	get := func(key string) (float64, bool) {
		v, ok := args[key]
		if !ok {
			return 0, false
		}
		f, ok := toFloat(v)
		if !ok {
			return 0, false
		}
		return f, true
	}

	ymin, ok1 := get("ymin")
	xmin, ok2 := get("xmin")
	ymax, ok3 := get("ymax")
	xmax, ok4 := get("xmax")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, 0, false
	}

	ymin = toNorm0to1000(ymin)
	xmin = toNorm0to1000(xmin)
	ymax = toNorm0to1000(ymax)
	xmax = toNorm0to1000(xmax)

	centerX := (xmin + xmax) / 2.0
	centerY := (ymin + ymax) / 2.0
	return int(centerX) / positionBucketSize, int(centerY) / positionBucketSize, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// computeActionSignature mirrors `_action_signature`: positioning tools
// fingerprint by coarse position bucket (deliberately ignoring
// target_description so label jitter doesn't defeat repeat detection);
// everything else fingerprints by its filtered, sorted argument set.
func computeActionSignature(name string, args map[string]any, lastTargetDescription string) actionSignature {
	filtered := make(map[string]any, len(args))
	for k, v := range args {
		if !toolMetadataKeys[k] {
			filtered[k] = v
		}
	}
	if clickToolToType[name] != "" {
		if _, hasTarget := filtered["target_description"]; !hasTarget && lastTargetDescription != "" {
			filtered["target_description"] = lastTargetDescription
		}
	}

	if positioningTools[name] {
		if bx, by, ok := positionBucket(filtered); ok {
			return actionSignature{name: name, flat: fmt.Sprintf("bucket:%d,%d", bx, by)}
		}
	}

	keys := make([]string, 0, len(filtered))
	for k := range filtered {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatAny(filtered[k]))
		b.WriteString(";")
	}
	return actionSignature{name: name, flat: b.String()}
}

func formatAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// clickLoopDetector mirrors the engine's alternating position->click cycle
// guard.
type clickLoopDetector struct {
	pendingPositionSignature *actionSignature
	lastCycleSignature       *[2]actionSignature
	repeatedCycleCount       int
}

// Register feeds one executed action into the detector and reports whether
// a repeated position->click cycle should stop the engine, unless the task
// text itself signals the user wants repeated clicking.
func (d *clickLoopDetector) Register(name string, signature actionSignature, clickType ClickType, taskExpectsRepeats bool) bool {
	if positioningTools[name] {
		sig := signature
		d.pendingPositionSignature = &sig
		return false
	}

	if clickType != "" {
		if d.pendingPositionSignature == nil {
			return false
		}
		cycle := [2]actionSignature{*d.pendingPositionSignature, signature}
		if d.lastCycleSignature != nil && *d.lastCycleSignature == cycle {
			d.repeatedCycleCount++
		} else {
			d.lastCycleSignature = &cycle
			d.repeatedCycleCount = 1
		}
		return d.repeatedCycleCount >= clickCycleLoopStopThreshold && !taskExpectsRepeats
	}

	d.pendingPositionSignature = nil
	d.lastCycleSignature = nil
	d.repeatedCycleCount = 0
	return false
}

// inferClickType guesses which click to synthesize after repeated
// positioning on the same target, from the task text and the positioning
// call's metadata.
func inferClickType(task string, args map[string]any) ClickType {
	pieces := []string{task}
	for _, key := range []string{"status_text", "target_description"} {
		if s, ok := args[key].(string); ok && s != "" {
			pieces = append(pieces, s)
		}
	}
	hay := strings.ToLower(strings.Join(pieces, " "))
	switch {
	case strings.Contains(hay, "double click") || strings.Contains(hay, "double-click"):
		return ClickDouble
	case strings.Contains(hay, "right click") || strings.Contains(hay, "right-click") || strings.Contains(hay, "context menu"):
		return ClickRight
	}
	return ClickLeft
}

var repeatedClickMarkers = []string{
	"times", "repeatedly", "keep clicking", "click again",
	"double click multiple", "spam click", "until", "every", "loop",
}

// TaskExpectsRepeatedClicks mirrors `_task_expects_repeated_clicks`.
func TaskExpectsRepeatedClicks(task string) bool {
	lower := strings.ToLower(task)
	for _, m := range repeatedClickMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
