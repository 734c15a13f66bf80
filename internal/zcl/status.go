package zcl

import "fmt"

// ZCL status codes
const (
	StatusSuccess                 uint8 = 0x00
	StatusFailure                 uint8 = 0x01
	StatusUnsupportedCommand      uint8 = 0x81
	StatusUnsupportedGeneral      uint8 = 0x82
	StatusUnsupportedManufCluster uint8 = 0x83
	StatusUnsupportedManufGeneral uint8 = 0x84
	StatusUnsupportedAttribute    uint8 = 0x86
	StatusInvalidValue            uint8 = 0x87
	StatusReadOnly                uint8 = 0x88
	StatusUnreportableAttribute   uint8 = 0x8C
	StatusInvalidDataType         uint8 = 0x8D
	StatusTimeout                 uint8 = 0x94
)

var statusNames = map[uint8]string{
	StatusSuccess:                 "SUCCESS",
	StatusFailure:                 "FAILURE",
	StatusUnsupportedCommand:      "UNSUP_COMMAND",
	StatusUnsupportedGeneral:      "UNSUP_GENERAL_COMMAND",
	StatusUnsupportedManufCluster: "UNSUP_MANUF_CLUSTER_COMMAND",
	StatusUnsupportedManufGeneral: "UNSUP_MANUF_GENERAL_COMMAND",
	StatusUnsupportedAttribute:    "UNSUPPORTED_ATTRIBUTE",
	StatusInvalidValue:            "INVALID_VALUE",
	StatusReadOnly:                "READ_ONLY",
	StatusInvalidDataType:         "INVALID_DATA_TYPE",
	StatusUnreportableAttribute:   "UNREPORTABLE_ATTRIBUTE",
	StatusTimeout:                 "TIMEOUT",
}

// StatusName returns the ZCL name of a status code.
func StatusName(status uint8) string {
	if n, ok := statusNames[status]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", status)
}

// StatusError is a non-success ZCL status returned by a device.
type StatusError struct {
	Status uint8
}

func (e *StatusError) Error() string {
	if n, ok := statusNames[e.Status]; ok {
		return fmt.Sprintf("zcl status %s (0x%02X)", n, e.Status)
	}
	return fmt.Sprintf("zcl status 0x%02X", e.Status)
}
