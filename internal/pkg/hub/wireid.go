package hub

import (
	"strconv"
	"strings"
)

// WireDeviceID builds the smart-home API's device id for one endpoint, per
// spec §4.G: "<hub-uniqueId>/<device-key>[/<endpoint-id>]". The endpoint
// segment is included only for devices that expose more than one endpoint;
// single-endpoint devices are addressed by the device key alone.
func WireDeviceID(uniqueID string, device *Device, endpointID uint8, includeEndpoint bool) string {
	id := uniqueID + "/" + device.Key
	if includeEndpoint {
		id += "/" + strconv.Itoa(int(endpointID))
	}
	return id
}

// ParseWireDeviceID reverses WireDeviceID. deviceKey is returned in its
// native "<service>/<id>" shape; hasEndpoint reports whether the wire id
// carried an explicit endpoint segment.
func ParseWireDeviceID(id string) (uniqueID, deviceKey string, endpointID uint8, hasEndpoint, ok bool) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 && len(parts) != 4 {
		return "", "", 0, false, false
	}

	uniqueID = parts[0]
	deviceKey = parts[1] + "/" + parts[2]

	if len(parts) == 3 {
		return uniqueID, deviceKey, 0, false, true
	}

	n, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil {
		return "", "", 0, false, false
	}

	return uniqueID, deviceKey, uint8(n), true, true
}
