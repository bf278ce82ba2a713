package publish

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/bmp"
)

func testFrame(seq uint64) Frame {
	const w, h = 4, 2
	data := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		// B G R A
		data[i*4], data[i*4+1], data[i*4+2], data[i*4+3] = 10, 20, 30, 255
	}
	return Frame{
		Sequence:  seq,
		Session:   uuid.New(),
		FrameID:   "sim_camera",
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Stride:    w * 4,
		Encoding:  EncodingBGRA8,
		Data:      data,
	}
}

func TestToImageSwizzles(t *testing.T) {
	img, err := ToImage(testFrame(1))
	if err != nil {
		t.Fatal(err)
	}
	c := img.RGBAAt(3, 1)
	if c.R != 30 || c.G != 20 || c.B != 10 || c.A != 255 {
		t.Errorf("got %+v", c)
	}

	bad := testFrame(1)
	bad.Data = bad.Data[:8]
	if _, err := ToImage(bad); err == nil {
		t.Error("short frame converted")
	}
	bad = testFrame(1)
	bad.Encoding = "rgb16"
	if _, err := ToImage(bad); err == nil {
		t.Error("unknown encoding converted")
	}
}

func TestDirectorySinkWritesBMP(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirectorySink(dir, 4)
	if err != nil {
		t.Fatal(err)
	}
	frame := testFrame(7)
	if err := sink.Publish(frame); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if sink.Written() != 1 {
		t.Fatalf("written %d, dropped %d", sink.Written(), sink.Dropped())
	}
	f, err := os.Open(sink.Path(frame))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := bmp.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("decoded %v", b)
	}
	if err := sink.Publish(frame); err != ErrClosed {
		t.Errorf("publish after close: %v", err)
	}
}

func TestDirectorySinkDropsWhenFull(t *testing.T) {
	sink, err := NewDirectorySink(t.TempDir(), 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 64; i++ {
		if err := sink.Publish(testFrame(i)); err != nil {
			t.Fatal(err)
		}
	}
	sink.Close()
	if sink.Written()+sink.Dropped() != 64 {
		t.Errorf("written %d + dropped %d != 64", sink.Written(), sink.Dropped())
	}
	if sink.Written() == 0 {
		t.Error("nothing written")
	}
}
