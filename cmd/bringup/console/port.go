// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the part of a serial port used by the Driver. A Read that times out
// returns 0 bytes and no error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// An Opener opens the named serial port at the given baud rate.
type Opener func(name string, baud int) (Port, error)

// OpenSerial opens a serial port with 8N1 framing.
func OpenSerial(name string, baud int) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var portErr *serial.PortError
		if os.IsNotExist(err) || (errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound) {
			return nil, fmt.Errorf("the port '%s' was not found", name)
		}
		if errors.As(err, &portErr) && portErr.Code() == serial.PortBusy {
			return nil, fmt.Errorf("the port '%s' is in use by another program", name)
		}
		return nil, err
	}
	return port, nil
}

// PortInfo describes a serial port present on this machine.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	desc := fmt.Sprintf("%s (USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		desc += " " + p.Product
	}
	if p.SerialNumber != "" {
		desc += " serial " + p.SerialNumber
	}
	return desc + ")"
}

// ListPorts enumerates the serial ports of this machine.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	res := make([]PortInfo, 0, len(details))
	for _, d := range details {
		res = append(res, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return res, nil
}

// PortExists reports whether name is among ports.
func PortExists(ports []PortInfo, name string) bool {
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}

// FilterPorts drops the ports that can't be a USB-serial adapter.
func FilterPorts(ports []PortInfo) []PortInfo {
	return filterPorts(runtime.GOOS, ports)
}

func filterPorts(goos string, ports []PortInfo) []PortInfo {
	switch goos {
	case "darwin":
		return darwinFilterPorts(ports)
	case "linux":
		return linuxFilterPorts(ports)
	default:
		return ports
	}
}

func darwinFilterPorts(ports []PortInfo) []PortInfo {
	existing := map[string]struct{}{}
	for _, p := range ports {
		existing[p.Name] = struct{}{}
	}
	var res []PortInfo
	for _, p := range ports {
		if strings.Contains(p.Name, "Bluetooth") {
			continue
		}
		if strings.HasPrefix(p.Name, "/dev/cu") {
			res = append(res, p)
		} else if strings.HasPrefix(p.Name, "/dev/tty") {
			// Prefer the callout device if both exist.
			candidate := "/dev/cu" + strings.TrimPrefix(p.Name, "/dev/tty")
			if _, exists := existing[candidate]; !exists {
				res = append(res, p)
			}
		}
	}
	return res
}

func linuxFilterPorts(ports []PortInfo) []PortInfo {
	var res []PortInfo
	for _, p := range ports {
		if p.IsUSB || (strings.Contains(p.Name, "tty") && (strings.Contains(p.Name, "USB") || strings.Contains(p.Name, "ACM"))) {
			res = append(res, p)
		}
	}
	return res
}
