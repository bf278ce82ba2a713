package loaders

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
)

type lensSurfaceFile struct {
	Radius   float32 `toml:"radius"`
	Z        float32 `toml:"z"`
	IOR      float32 `toml:"ior"`
	Aperture float32 `toml:"aperture"`
	Stop     bool    `toml:"stop"`
}

type lensSensorFile struct {
	Z      float32 `toml:"z"`
	Width  float32 `toml:"width"`
	Height float32 `toml:"height"`
}

// lensFile is the on-disk description, lengths in metres.
type lensFile struct {
	Name     string            `toml:"name"`
	Sensor   lensSensorFile    `toml:"sensor"`
	Surfaces []lensSurfaceFile `toml:"surface"`
}

type LensLoader struct{}

// Load reads a TOML lens description and validates it.
func (ll *LensLoader) Load(path string) (interface{}, error) {
	data, err := ReadBinary(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAssetInvalid, err)
	}
	return DecodeLens(data)
}

func LoadLens(path string) (*passes.LensSystem, error) {
	l, err := (&LensLoader{}).Load(path)
	if err != nil {
		return nil, err
	}
	return l.(*passes.LensSystem), nil
}

func DecodeLens(data []byte) (*passes.LensSystem, error) {
	var f lensFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: lens description: %v", core.ErrAssetInvalid, err)
	}
	lens := &passes.LensSystem{
		Name:    f.Name,
		SensorZ: f.Sensor.Z,
		SensorW: f.Sensor.Width,
		SensorH: f.Sensor.Height,
	}
	for _, s := range f.Surfaces {
		lens.Surfaces = append(lens.Surfaces, passes.LensSurface{
			Radius:   s.Radius,
			Z:        s.Z,
			IOR:      s.IOR,
			Aperture: s.Aperture,
			Stop:     s.Stop,
		})
	}
	if err := lens.Validate(); err != nil {
		return nil, err
	}
	return lens, nil
}

// EncodeLens writes a lens system in the format DecodeLens reads.
func EncodeLens(lens *passes.LensSystem) ([]byte, error) {
	f := lensFile{
		Name:   lens.Name,
		Sensor: lensSensorFile{Z: lens.SensorZ, Width: lens.SensorW, Height: lens.SensorH},
	}
	for _, s := range lens.Surfaces {
		f.Surfaces = append(f.Surfaces, lensSurfaceFile(s))
	}
	return toml.Marshal(f)
}
