package hal

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"kestrel/internal/buildinfo"
)

// RunWindow opens a desktop window that presents the host framebuffer.
// onFrame is invoked once per display refresh, before the framebuffer
// is drawn; it is where the embedder raises its vertical interrupt. A
// non-nil error from onFrame closes the window. RunWindow blocks until
// the window closes and must run on the program's main goroutine.
func (h *Host) RunWindow(title string, onFrame func() error) error {
	g := &hostGame{h: h, onFrame: onFrame}
	ebiten.SetWindowTitle(title + " (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *Host
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	onFrame func() error
}

func (g *hostGame) Update() error {
	if g.onFrame != nil {
		if err := g.onFrame(); err != nil {
			return err
		}
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := (i / 2) * 4
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.ReplacePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
