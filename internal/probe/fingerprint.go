package probe

import (
	"context"
	"errors"
)

const (
	FieldFingerprint  = "fingerprint"
	FieldModel        = "model"
	FieldManufacturer = "manufacturer"
	FieldBrand        = "brand"
	FieldDevice       = "device"
)

// DeviceFields lists the identity fields in their canonical order.
var DeviceFields = []string{FieldFingerprint, FieldModel, FieldManufacturer, FieldBrand, FieldDevice}

// DeviceFingerprintProbe returns the device identity strings verbatim.
type DeviceFingerprintProbe struct {
	reader PropertyReader
}

func NewDeviceFingerprintProbe(reader PropertyReader) (*DeviceFingerprintProbe, error) {
	if reader == nil {
		return nil, errors.New("device fingerprint probe: reader is nil")
	}
	return &DeviceFingerprintProbe{reader: reader}, nil
}

func (p *DeviceFingerprintProbe) Name() string { return "device-fingerprint" }

func (p *DeviceFingerprintProbe) Observe(ctx context.Context) (Evidence, error) {
	props, err := p.reader.ReadProperties(ctx)
	if err != nil {
		return Evidence{}, Unavailable(p.Name(), err)
	}
	ev := NewEvidence()
	ev.Set(FieldFingerprint, props.Fingerprint)
	ev.Set(FieldModel, props.Model)
	ev.Set(FieldManufacturer, props.Manufacturer)
	ev.Set(FieldBrand, props.Brand)
	ev.Set(FieldDevice, props.Device)
	return ev, nil
}
