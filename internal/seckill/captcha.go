package seckill

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand/v2"
	"strconv"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CaptchaStore keeps expected answers with use-once reads.
type CaptchaStore interface {
	SetCaptcha(ctx context.Context, userID, activityID uint64, answer int, ttl time.Duration) error
	TakeCaptcha(ctx context.Context, userID, activityID uint64) (string, bool, error)
}

// Challenge is an issued arithmetic captcha.  Image is a PNG data URI.
type Challenge struct {
	Image string `json:"captcha_image"`
}

// CaptchaService issues and verifies arithmetic captchas per (user,
// activity).
type CaptchaService struct {
	store CaptchaStore
	ttl   time.Duration
	rng   func(n int) int
}

// NewCaptchaService returns a service storing answers for ttl.
func NewCaptchaService(store CaptchaStore, ttl time.Duration) *CaptchaService {
	return &CaptchaService{store: store, ttl: ttl, rng: rand.IntN}
}

// expression builds "a op b = ?" over digits 1..9 and returns its answer.
// Subtraction operands are ordered so the answer is never negative.
func expression(rng func(int) int) (string, int) {
	a, b := rng(9)+1, rng(9)+1
	switch rng(3) {
	case 0:
		return fmt.Sprintf("%d + %d = ?", a, b), a + b
	case 1:
		if a < b {
			a, b = b, a
		}
		return fmt.Sprintf("%d - %d = ?", a, b), a - b
	default:
		return fmt.Sprintf("%d x %d = ?", a, b), a * b
	}
}

// Issue generates a new challenge, replacing any previous answer.
func (s *CaptchaService) Issue(ctx context.Context, userID, activityID uint64) (*Challenge, error) {
	text, answer := expression(s.rng)
	if err := s.store.SetCaptcha(ctx, userID, activityID, answer, s.ttl); err != nil {
		return nil, Busy(err)
	}
	img, err := renderCaptcha(text, s.rng)
	if err != nil {
		return nil, err
	}
	return &Challenge{Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)}, nil
}

// Verify consumes the stored answer and compares it with answer.  A
// missing answer fails closed.
func (s *CaptchaService) Verify(ctx context.Context, userID, activityID uint64, answer int) error {
	stored, ok, err := s.store.TakeCaptcha(ctx, userID, activityID)
	if err != nil {
		return Busy(err)
	}
	if !ok {
		return ErrCaptcha
	}
	want, err := strconv.Atoi(stored)
	if err != nil || want != answer {
		return ErrCaptcha
	}
	return nil
}

const (
	captchaWidth  = 160
	captchaHeight = 50
	captchaScale  = 2
)

var (
	captchaBackground = color.RGBA{30, 30, 46, 255}
	captchaInk        = color.RGBA{139, 92, 246, 255}
)

// renderCaptcha draws text with noise on a small canvas and scales it up.
func renderCaptcha(text string, rng func(int) int) ([]byte, error) {
	w, h := captchaWidth/captchaScale, captchaHeight/captchaScale
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.NewUniform(captchaBackground), image.Point{}, draw.Src)

	for i := 0; i < 25; i++ {
		c := color.RGBA{uint8(80 + rng(60)), uint8(80 + rng(60)), uint8(100 + rng(60)), 255}
		small.Set(rng(w), rng(h), c)
	}
	for i := 0; i < 3; i++ {
		c := color.RGBA{uint8(60 + rng(40)), uint8(60 + rng(40)), uint8(80 + rng(40)), 255}
		y := rng(h)
		for x := 0; x < w; x++ {
			small.Set(x, y+(x*(rng(3)-1))/w, c)
		}
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: small, Src: image.NewUniform(captchaInk), Face: face}
	tw := d.MeasureString(text).Ceil()
	d.Dot = fixed.P((w-tw)/2, (h+face.Ascent-face.Descent)/2)
	d.DrawString(text)

	out := image.NewRGBA(image.Rect(0, 0, captchaWidth, captchaHeight))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
