package serial

import (
	"fmt"
	"slices"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo contains information about a serial port
type PortInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListPorts returns the names of the available serial ports, sorted
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get available ports: %w", err)
	}

	slices.Sort(ports)
	return ports, nil
}

// GetDetailedPortsList returns detailed information about available serial
// ports. When the platform cannot enumerate USB details, the plain port
// names are returned instead.
func GetDetailedPortsList() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		names, listErr := ListPorts()
		if listErr != nil {
			return nil, fmt.Errorf("failed to get ports list: %w", err)
		}

		infos := make([]PortInfo, 0, len(names))
		for _, name := range names {
			infos = append(infos, PortInfo{Name: name})
		}
		return infos, nil
	}

	return portInfos(details), nil
}

func portInfos(details []*enumerator.PortDetails) []PortInfo {
	infos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}

		info := PortInfo{
			Name:        d.Name,
			Description: d.Product,
			IsUSB:       d.IsUSB,
		}
		if d.IsUSB {
			info.VID = d.VID
			info.PID = d.PID
			info.SerialNumber = d.SerialNumber
		}
		infos = append(infos, info)
	}

	slices.SortFunc(infos, func(a, b PortInfo) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return infos
}

// IsPortAvailable checks if a specific port is available
func IsPortAvailable(portName string) bool {
	ports, err := serial.GetPortsList()
	if err != nil {
		return false
	}

	return slices.Contains(ports, portName)
}
