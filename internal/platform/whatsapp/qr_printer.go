package whatsapp

import (
	"fmt"
	"io"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// PrintQR renders the pairing code as half-block characters so it fits a terminal.
func PrintQR(out io.Writer, code string) error {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}
	qr.DisableBorder = true
	bmp := qr.Bitmap()
	if len(bmp)%2 == 1 {
		width := 0
		if len(bmp) > 0 {
			width = len(bmp[0])
		}
		bmp = append(bmp, make([]bool, width))
	}

	var b strings.Builder
	b.WriteString("\nScan with WhatsApp > Linked devices:\n")
	for y := 0; y < len(bmp); y += 2 {
		top, bottom := bmp[y], bmp[y+1]
		for x := range top {
			switch t, bt := top[x], bottom[x]; {
			case t && bt:
				b.WriteRune('█')
			case t:
				b.WriteRune('▀')
			case bt:
				b.WriteRune('▄')
			default:
				b.WriteRune(' ')
			}
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err = io.WriteString(out, b.String())
	return err
}
