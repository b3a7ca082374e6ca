// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package upload

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// halDeviceProvider is implemented by providers and devices that expose
// their wgpu/hal device.
type halDeviceProvider interface {
	HalDevice() any
}

// FromProvider returns a HAL uploader on the device of p. The HAL device
// is taken from p itself when it implements HalDevice() any, otherwise
// from p.Device(), which may be a hal.Device or expose one the same way.
func FromProvider(p gpucontext.DeviceProvider) (*HAL, error) {
	if p == nil {
		return nil, ErrNoDevice
	}
	if hp, ok := p.(halDeviceProvider); ok {
		if d, ok := hp.HalDevice().(hal.Device); ok && d != nil {
			return NewHAL(d), nil
		}
	}
	switch d := p.Device().(type) {
	case hal.Device:
		if d != nil {
			return NewHAL(d), nil
		}
	case halDeviceProvider:
		if hd, ok := d.HalDevice().(hal.Device); ok && hd != nil {
			return NewHAL(hd), nil
		}
	}
	slogger().Warn("upload: provider exposes no HAL device", "adapter", p.AdapterInfo().Name)
	return nil, ErrNoDevice
}
