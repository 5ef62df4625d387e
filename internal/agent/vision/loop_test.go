package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeActionSignature_PositioningBucketsNearbyArgs(t *testing.T) {
	a := computeActionSignature("go_to_element", map[string]any{
		"ymin": 400.0, "xmin": 400.0, "ymax": 420.0, "xmax": 420.0, "status_text": "x",
	}, "")
	b := computeActionSignature("go_to_element", map[string]any{
		"ymin": 402.0, "xmin": 403.0, "ymax": 421.0, "xmax": 419.0, "status_text": "y",
	}, "")
	assert.Equal(t, a, b, "nearby bbox args should bucket to the same signature")
}

func TestComputeActionSignature_DifferentBucketsDiffer(t *testing.T) {
	a := computeActionSignature("go_to_element", map[string]any{
		"ymin": 0.0, "xmin": 0.0, "ymax": 20.0, "xmax": 20.0,
	}, "")
	b := computeActionSignature("go_to_element", map[string]any{
		"ymin": 800.0, "xmin": 800.0, "ymax": 820.0, "xmax": 820.0,
	}, "")
	assert.NotEqual(t, a, b)
}

func TestComputeActionSignature_NonPositioningIgnoresMetadataKeys(t *testing.T) {
	a := computeActionSignature("type_string", map[string]any{"string": "hello", "status_text": "a"}, "")
	b := computeActionSignature("type_string", map[string]any{"string": "hello", "status_text": "b"}, "")
	assert.Equal(t, a, b)
}

func TestClickLoopDetector_DetectsRepeatedCycle(t *testing.T) {
	d := &clickLoopDetector{}
	posSig := computeActionSignature("go_to_element", map[string]any{"ymin": 0.0, "xmin": 0.0, "ymax": 20.0, "xmax": 20.0}, "")
	clickSig := computeActionSignature("click_left_click", map[string]any{}, "")

	stop := false
	for i := 0; i < 4; i++ {
		d.Register("go_to_element", posSig, "", false)
		stop = d.Register("click_left_click", clickSig, ClickLeft, false)
	}
	assert.True(t, stop)
}

func TestClickLoopDetector_TaskExpectingRepeatsNeverStops(t *testing.T) {
	d := &clickLoopDetector{}
	posSig := computeActionSignature("go_to_element", map[string]any{"ymin": 0.0, "xmin": 0.0, "ymax": 20.0, "xmax": 20.0}, "")
	clickSig := computeActionSignature("click_left_click", map[string]any{}, "")

	stop := false
	for i := 0; i < 6; i++ {
		d.Register("go_to_element", posSig, "", true)
		stop = d.Register("click_left_click", clickSig, ClickLeft, true)
	}
	assert.False(t, stop)
}

func TestClickLoopDetector_NonPositionActionResetsDetector(t *testing.T) {
	d := &clickLoopDetector{}
	posSig := computeActionSignature("go_to_element", map[string]any{"ymin": 0.0, "xmin": 0.0, "ymax": 20.0, "xmax": 20.0}, "")
	clickSig := computeActionSignature("click_left_click", map[string]any{}, "")

	d.Register("go_to_element", posSig, "", false)
	d.Register("click_left_click", clickSig, ClickLeft, false)
	d.Register("type_string", computeActionSignature("type_string", map[string]any{"string": "x"}, ""), "", false)

	assert.Nil(t, d.pendingPositionSignature)
	assert.Equal(t, 0, d.repeatedCycleCount)
}

func TestTaskExpectsRepeatedClicks(t *testing.T) {
	assert.True(t, TaskExpectsRepeatedClicks("click it 5 times"))
	assert.True(t, TaskExpectsRepeatedClicks("keep clicking until it stops"))
	assert.False(t, TaskExpectsRepeatedClicks("click the submit button"))
}

func TestInferClickType(t *testing.T) {
	assert.Equal(t, ClickLeft, inferClickType("click the save icon", nil))
	assert.Equal(t, ClickDouble, inferClickType("double click the folder", nil))
	assert.Equal(t, ClickRight, inferClickType("open the context menu on the file", nil))
	assert.Equal(t, ClickRight, inferClickType("select the file", map[string]any{"status_text": "Right-click the file"}))
}
