package vision

import (
	"context"
	"testing"

	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_CropAndSearch_ResolvesAndClicks(t *testing.T) {
	shot := WindowCapture{
		Image: encodeTestJPEG(1000, 800), Width: 1000, Height: 800,
		ScaleX: 1, ScaleY: 1,
	}
	invoker := &fakeInvoker{results: []modelclient.Result{{Text: "[100, 100, 900, 900]"}}}
	desktop := &fakeDesktop{}
	locator := NewLocator(invoker, desktop, &fakeCapturer{shot: shot}, "")

	res, err := locator.CropAndSearch(context.Background(), shot, BBox{YMin: 300, XMin: 300, YMax: 500, XMax: 500}, "submit button", ClickLeft, true)
	require.NoError(t, err)
	assert.Greater(t, res.X, 0.0)
	assert.Greater(t, res.Y, 0.0)
	require.Len(t, desktop.clicks, 1)
	assert.Equal(t, ClickLeft, desktop.clicks[0])
}

func TestLocator_CropAndSearch_NoClickWhenNotRequested(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(1000, 800), Width: 1000, Height: 800, ScaleX: 1, ScaleY: 1}
	invoker := &fakeInvoker{results: []modelclient.Result{{Text: "[100, 100, 900, 900]"}}}
	desktop := &fakeDesktop{}
	locator := NewLocator(invoker, desktop, &fakeCapturer{shot: shot}, "")

	_, err := locator.CropAndSearch(context.Background(), shot, BBox{YMin: 300, XMin: 300, YMax: 500, XMax: 500}, "submit button", "", false)
	require.NoError(t, err)
	assert.Empty(t, desktop.clicks)
}

func TestLocator_LegacyFindAndClick(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(640, 480), Width: 640, Height: 480, ScaleX: 1, ScaleY: 1, Title: "Notepad"}
	invoker := &fakeInvoker{results: []modelclient.Result{{Text: "[200, 200, 400, 400]"}}}
	desktop := &fakeDesktop{}
	capture := &fakeCapturer{shot: shot}
	locator := NewLocator(invoker, desktop, capture, "")

	ok, err := locator.LegacyFindAndClick(context.Background(), ClickDouble, "close button")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, desktop.clicks, 1)
	assert.Equal(t, ClickDouble, desktop.clicks[0])
}

func TestLocator_CropAndSearch_InvalidBBoxErrors(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(1000, 800), Width: 1000, Height: 800, ScaleX: 1, ScaleY: 1}
	invoker := &fakeInvoker{results: []modelclient.Result{{Text: "not a bbox"}}}
	locator := NewLocator(invoker, &fakeDesktop{}, &fakeCapturer{shot: shot}, "")

	_, err := locator.CropAndSearch(context.Background(), shot, BBox{YMin: 300, XMin: 300, YMax: 500, XMax: 500}, "x", "", false)
	assert.Error(t, err)
}
