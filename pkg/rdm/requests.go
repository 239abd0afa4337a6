package rdm

import (
	"encoding/binary"
)

// MaxLabelLen is the longest device or software version label (E1.20
// Section 10.5). Labels are ASCII and need not be NUL terminated on
// the wire.
const MaxLabelLen = 32

// Parameter data layouts for the typed request surface. Parsing them
// once at init catches a malformed layout immediately; their sizes
// validate response parameter data before decoding.
var (
	deviceInfoFormat   = MustFormat("#0100hwwdwbbwwb$")
	startAddressFormat = MustFormat("w$")
	identifyFormat     = MustFormat("b$")
)

// DeviceInfo is the DEVICE_INFO parameter (E1.20 Section 10.5.1).
type DeviceInfo struct {
	// ModelID identifies the product model, manufacturer scoped.
	ModelID uint16

	// ProductCategory is the coarse product category code.
	ProductCategory uint16

	// SoftwareVersionID identifies the responder firmware build.
	SoftwareVersionID uint32

	// FootprintSize is the number of DMX slots the device occupies.
	FootprintSize uint16

	// CurrentPersonality and PersonalityCount describe the active DMX
	// personality, 1-based.
	CurrentPersonality uint8
	PersonalityCount   uint8

	// StartAddress is the DMX start address, 1-512, or 0xFFFF when the
	// footprint is zero.
	StartAddress uint16

	// SubDeviceCount is the number of sub-devices.
	SubDeviceCount uint16

	// SensorCount is the number of sensors.
	SensorCount uint8
}

// GetDeviceInfo fetches DEVICE_INFO from a device. The returned value
// is meaningful only when the ack is a plain ACK.
func (c *Controller) GetDeviceInfo(dest UID, sub SubDevice) (DeviceInfo, Ack, error) {
	resp, err := c.Do(&Request{DestUID: dest, SubDevice: sub, CC: GetCommand, PID: PIDDeviceInfo})
	if err != nil {
		return DeviceInfo{}, Ack{}, err
	}
	if !resp.Ack.OK() {
		return DeviceInfo{}, resp.Ack, nil
	}
	pd := resp.PD
	if len(pd) < deviceInfoFormat.Size() || pd[0] != 0x01 || pd[1] != 0x00 {
		resp.Ack.Type = ResponseTypeInvalid
		return DeviceInfo{}, resp.Ack, nil
	}
	return DeviceInfo{
		ModelID:            binary.BigEndian.Uint16(pd[2:4]),
		ProductCategory:    binary.BigEndian.Uint16(pd[4:6]),
		SoftwareVersionID:  binary.BigEndian.Uint32(pd[6:10]),
		FootprintSize:      binary.BigEndian.Uint16(pd[10:12]),
		CurrentPersonality: pd[12],
		PersonalityCount:   pd[13],
		StartAddress:       binary.BigEndian.Uint16(pd[14:16]),
		SubDeviceCount:     binary.BigEndian.Uint16(pd[16:18]),
		SensorCount:        pd[18],
	}, resp.Ack, nil
}

// GetSoftwareVersionLabel fetches the firmware version label.
func (c *Controller) GetSoftwareVersionLabel(dest UID, sub SubDevice) (string, Ack, error) {
	return c.getLabel(dest, sub, PIDSoftwareVersionLabel)
}

// GetDeviceLabel fetches the user-assigned device label.
func (c *Controller) GetDeviceLabel(dest UID, sub SubDevice) (string, Ack, error) {
	return c.getLabel(dest, sub, PIDDeviceLabel)
}

func (c *Controller) getLabel(dest UID, sub SubDevice, pid PID) (string, Ack, error) {
	resp, err := c.Do(&Request{DestUID: dest, SubDevice: sub, CC: GetCommand, PID: pid})
	if err != nil {
		return "", Ack{}, err
	}
	if !resp.Ack.OK() {
		return "", resp.Ack, nil
	}
	pd := resp.PD
	if len(pd) > MaxLabelLen {
		pd = pd[:MaxLabelLen]
	}
	// Devices may pad with NULs.
	if n := strLen(pd, len(pd)); n < len(pd) {
		pd = pd[:n]
	}
	return string(pd), resp.Ack, nil
}

// SetDeviceLabel sets the user-assigned device label. Labels longer
// than MaxLabelLen are truncated.
func (c *Controller) SetDeviceLabel(dest UID, sub SubDevice, label string) (Ack, error) {
	if len(label) > MaxLabelLen {
		label = label[:MaxLabelLen]
	}
	resp, err := c.Do(&Request{
		DestUID:   dest,
		SubDevice: sub,
		CC:        SetCommand,
		PID:       PIDDeviceLabel,
		PD:        []byte(label),
	})
	if err != nil {
		return Ack{}, err
	}
	return resp.Ack, nil
}

// GetDMXStartAddress fetches the device's DMX start address.
func (c *Controller) GetDMXStartAddress(dest UID, sub SubDevice) (uint16, Ack, error) {
	resp, err := c.Do(&Request{DestUID: dest, SubDevice: sub, CC: GetCommand, PID: PIDDMXStartAddress})
	if err != nil {
		return 0, Ack{}, err
	}
	if !resp.Ack.OK() {
		return 0, resp.Ack, nil
	}
	if len(resp.PD) < startAddressFormat.Size() {
		resp.Ack.Type = ResponseTypeInvalid
		return 0, resp.Ack, nil
	}
	return binary.BigEndian.Uint16(resp.PD), resp.Ack, nil
}

// SetDMXStartAddress sets the device's DMX start address, 1-512.
func (c *Controller) SetDMXStartAddress(dest UID, sub SubDevice, addr uint16) (Ack, error) {
	if addr < 1 || addr > 512 {
		return Ack{}, ErrBadStartAddress
	}
	var pd [2]byte
	binary.BigEndian.PutUint16(pd[:], addr)
	resp, err := c.Do(&Request{
		DestUID:   dest,
		SubDevice: sub,
		CC:        SetCommand,
		PID:       PIDDMXStartAddress,
		PD:        pd[:],
	})
	if err != nil {
		return Ack{}, err
	}
	return resp.Ack, nil
}

// GetIdentifyDevice fetches the identify state.
func (c *Controller) GetIdentifyDevice(dest UID, sub SubDevice) (bool, Ack, error) {
	resp, err := c.Do(&Request{DestUID: dest, SubDevice: sub, CC: GetCommand, PID: PIDIdentifyDevice})
	if err != nil {
		return false, Ack{}, err
	}
	if !resp.Ack.OK() {
		return false, resp.Ack, nil
	}
	if len(resp.PD) < identifyFormat.Size() {
		resp.Ack.Type = ResponseTypeInvalid
		return false, resp.Ack, nil
	}
	return resp.PD[0] != 0, resp.Ack, nil
}

// SetIdentifyDevice switches the device's identify indicator.
func (c *Controller) SetIdentifyDevice(dest UID, sub SubDevice, on bool) (Ack, error) {
	pd := []byte{0}
	if on {
		pd[0] = 1
	}
	resp, err := c.Do(&Request{
		DestUID:   dest,
		SubDevice: sub,
		CC:        SetCommand,
		PID:       PIDIdentifyDevice,
		PD:        pd,
	})
	if err != nil {
		return Ack{}, err
	}
	return resp.Ack, nil
}

// GetSupportedParameters fetches the list of PIDs the device supports
// beyond the required minimum set. An ACK_OVERFLOW reply carries only
// the first block; continuation is not supported.
func (c *Controller) GetSupportedParameters(dest UID, sub SubDevice) ([]PID, Ack, error) {
	resp, err := c.Do(&Request{DestUID: dest, SubDevice: sub, CC: GetCommand, PID: PIDSupportedParameters})
	if err != nil {
		return nil, Ack{}, err
	}
	if resp.Ack.Type != ResponseTypeAck && resp.Ack.Type != ResponseTypeAckOverflow {
		return nil, resp.Ack, nil
	}
	pd := resp.PD
	pids := make([]PID, 0, len(pd)/2)
	for len(pd) >= 2 {
		pids = append(pids, PID(binary.BigEndian.Uint16(pd)))
		pd = pd[2:]
	}
	return pids, resp.Ack, nil
}
