// This file holds the two secondary-localization passes: crop-and-search
// (a zoomed-in second model call against a cropped region) and
// the legacy locator (the older whole-screen
// second-call fallback used when direct single-call actions keep failing).
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/clovis-agent/clovis/internal/modelclient"
)

// DefaultLocatorModel is used for both secondary-localization passes unless
// a caller overrides it.
const DefaultLocatorModel = "gemini-3-flash-preview"

// Locator runs the crop-and-search and legacy-fallback secondary
// localization passes against a Desktop/Capturer pair.
type Locator struct {
	invoker modelclient.Invoker
	desktop Desktop
	capture Capturer
	model   string
}

// NewLocator constructs a Locator.
func NewLocator(invoker modelclient.Invoker, desktop Desktop, capture Capturer, model string) *Locator {
	if model == "" {
		model = DefaultLocatorModel
	}
	return &Locator{invoker: invoker, desktop: desktop, capture: capture, model: model}
}

// CropAndSearchResult is the outcome of one crop-and-search pass.
type CropAndSearchResult struct {
	X, Y      float64
	CropBox   CropBox
	ClickType ClickType
}

// CropAndSearch crops the given window capture to padded crop bounds,
// runs a second localization call inside the crop, and optionally performs
// the resolved click.
func (l *Locator) CropAndSearch(ctx context.Context, shot WindowCapture, box BBox, targetDescription string, clickType ClickType, performClick bool) (CropAndSearchResult, error) {
	img, _, err := image.Decode(bytes.NewReader(shot.Image))
	if err != nil {
		return CropAndSearchResult{}, fmt.Errorf("decode screenshot: %w", err)
	}

	crop := NormalizeCropBox(box, shot.Width, shot.Height, DefaultCropPadPx, true)
	if crop.Width() <= 1 || crop.Height() <= 1 {
		return CropAndSearchResult{}, fmt.Errorf("invalid crop region after normalization")
	}

	cropped := cropImage(img, crop)
	cropBytes, err := encodeJPEG(cropped)
	if err != nil {
		return CropAndSearchResult{}, fmt.Errorf("encode crop: %w", err)
	}

	prompt := fmt.Sprintf(locatorPromptTemplate, targetDescription)
	res, err := l.invoker.Invoke(ctx, l.model, []modelclient.Message{{
		Role:    "user",
		Content: prompt,
		Images:  [][]byte{cropBytes},
	}}, nil)
	if err != nil {
		return CropAndSearchResult{}, err
	}

	localBox, err := ParseBBox(res.Text)
	if err != nil {
		return CropAndSearchResult{}, err
	}

	pt := ResolveCropAndSearchPoint(crop, localBox, shot.OffsetX, shot.OffsetY, shot.ScaleX, shot.ScaleY)

	if performClick {
		resolved := clickType
		if resolved == "" {
			resolved = ClickLeft
		}
		if err := l.desktop.MoveCursor(ctx, pt.X, pt.Y, 200*time.Millisecond); err != nil {
			return CropAndSearchResult{}, err
		}
		if err := l.desktop.Click(ctx, resolved); err != nil {
			return CropAndSearchResult{}, err
		}
		clickType = resolved
	}

	return CropAndSearchResult{X: pt.X, Y: pt.Y, CropBox: crop, ClickType: clickType}, nil
}

const locatorPromptTemplate = `You are localizing a single clickable UI target inside a cropped screenshot.
Target: %s

Return ONLY one bounding box in this exact format:
[ymin, xmin, ymax, xmax]

Rules:
- Coordinates must be normalized to 0-1000 relative to THIS CROPPED image.
- Box should tightly contain one clickable element.
- Output only the bracketed array, no extra text.`

// LegacyFindAndClick runs the older whole-screen second-call locator as an
// internal fallback after repeated direct-action failures.
func (l *Locator) LegacyFindAndClick(ctx context.Context, clickType ClickType, elementDescription string) (bool, error) {
	shot, err := l.capture.CaptureActiveWindow(ctx)
	if err != nil {
		return false, err
	}

	prompt := fmt.Sprintf(legacyLocatorPromptTemplate, shot.Title, elementDescription)
	res, err := l.invoker.Invoke(ctx, l.model, []modelclient.Message{{
		Role:    "user",
		Content: prompt,
		Images:  [][]byte{shot.Image},
	}}, nil)
	if err != nil {
		return false, err
	}

	box, err := ParseBBox(res.Text)
	if err != nil {
		return false, err
	}

	centerX := toPixels(box.XMin, shot.Width) + (toPixels(box.XMax, shot.Width)-toPixels(box.XMin, shot.Width))/2.0
	centerY := toPixels(box.YMin, shot.Height) + (toPixels(box.YMax, shot.Height)-toPixels(box.YMin, shot.Height))/2.0
	x := centerX/scaleOrOne(shot.ScaleX) + shot.OffsetX
	y := centerY/scaleOrOne(shot.ScaleY) + shot.OffsetY

	if err := l.desktop.MoveCursor(ctx, x, y, 200*time.Millisecond); err != nil {
		return false, err
	}
	if err := l.desktop.Click(ctx, clickType); err != nil {
		return false, err
	}
	return true, nil
}

const legacyLocatorPromptTemplate = `This image is a screenshot of %s - an application that contains many interactive elements.

Give an in-depth description of everything you see, then use it to locate the target.
Please keep in mind that only one element can be pressed. Your bounding box should only contain at most one clickable element.
Return a bounding box for the %s. Do NOT output any words:
[ymin, xmin, ymax, xmax]`

func scaleOrOne(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	return v
}

func cropImage(img image.Image, box CropBox) image.Image {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	rect := image.Rect(box.Left, box.Top, box.Right, box.Bottom)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, box.Width(), box.Height()))
	for y := box.Top; y < box.Bottom; y++ {
		for x := box.Left; x < box.Right; x++ {
			dst.Set(x-box.Left, y-box.Top, img.At(x, y))
		}
	}
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
