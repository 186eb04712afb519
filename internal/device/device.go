// Package device resolves a stable identifier for the local machine,
// used to bind vaults to the host they were created on.
package device

import (
	"fmt"

	"github.com/denisbrodbeck/machineid"
)

// appID scopes the hashed machine id to this application, so the raw
// OS identifier never appears in key material and other applications
// cannot correlate it.
const appID = "wlk-passwordsafe"

// ID returns the HMAC-protected machine identifier. The value is
// stable across reboots on the same host and differs between hosts.
func ID() ([]byte, error) {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return nil, fmt.Errorf("resolve machine id: %w", err)
	}
	return []byte(id), nil
}
