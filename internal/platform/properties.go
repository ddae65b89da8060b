package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"vaultguard/internal/probe"
)

const DefaultDMIRoot = "/sys/class/dmi/id"

// DMIProperties maps SMBIOS identity onto the device identity strings.
// Virtual machines report their hypervisor here (QEMU, VirtualBox,
// VMware), which is the workstation analogue of an emulator build.
//
//	fingerprint  board_vendor/product_name/product_version:bios_version
//	model        product_name
//	manufacturer sys_vendor
//	brand        board_vendor
//	device       board_name
type DMIProperties struct {
	Root string
}

func NewDMIProperties() *DMIProperties {
	return &DMIProperties{Root: DefaultDMIRoot}
}

func (p *DMIProperties) ReadProperties(ctx context.Context) (probe.DeviceProperties, error) {
	root := p.Root
	if root == "" {
		root = DefaultDMIRoot
	}
	if _, err := os.Stat(root); err != nil {
		return probe.DeviceProperties{}, fmt.Errorf("read dmi identity: %w", err)
	}

	var firstErr error
	read := func(name string) string {
		if firstErr != nil {
			return ""
		}
		if err := ctx.Err(); err != nil {
			firstErr = err
			return ""
		}
		b, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			// Unreadable fields (product_serial needs root) or absent ones are
			// left empty; anything else fails the read.
			if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission) {
				firstErr = fmt.Errorf("read dmi %s: %w", name, err)
			}
			return ""
		}
		return strings.TrimSpace(string(b))
	}

	props := probe.DeviceProperties{
		Model:        read("product_name"),
		Manufacturer: read("sys_vendor"),
		Brand:        read("board_vendor"),
		Device:       read("board_name"),
	}
	version := read("product_version")
	bios := read("bios_version")
	if firstErr != nil {
		return probe.DeviceProperties{}, firstErr
	}
	props.Fingerprint = fmt.Sprintf("%s/%s/%s:%s", props.Brand, props.Model, version, bios)
	return props, nil
}

// StaticProperties serves a fixed identity, typically from configuration.
type StaticProperties probe.DeviceProperties

func (p StaticProperties) ReadProperties(ctx context.Context) (probe.DeviceProperties, error) {
	if err := ctx.Err(); err != nil {
		return probe.DeviceProperties{}, err
	}
	return probe.DeviceProperties(p), nil
}

// Overlay reads from base and replaces every field that is set in override.
type Overlay struct {
	Base     probe.PropertyReader
	Override probe.DeviceProperties
}

func (o Overlay) ReadProperties(ctx context.Context) (probe.DeviceProperties, error) {
	props, err := o.Base.ReadProperties(ctx)
	if err != nil {
		return probe.DeviceProperties{}, err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&props.Fingerprint, o.Override.Fingerprint)
	set(&props.Model, o.Override.Model)
	set(&props.Manufacturer, o.Override.Manufacturer)
	set(&props.Brand, o.Override.Brand)
	set(&props.Device, o.Override.Device)
	return props, nil
}
