package domain

// PrincipalKind discriminates who is acting: a client application or a
// device pushing into its own buffers.
type PrincipalKind string

const (
	PrincipalClient PrincipalKind = "client"
	PrincipalDevice PrincipalKind = "device"
)

// Principal identifies an authenticated caller. The zero value means
// unauthenticated.
type Principal struct {
	Kind PrincipalKind
	UID  string
}

// IsZero reports whether no principal was established.
func (p Principal) IsZero() bool {
	return p.Kind == "" || p.UID == ""
}

// IsClient reports whether the caller is an authenticated client.
func (p Principal) IsClient() bool {
	return p.Kind == PrincipalClient && p.UID != ""
}

// IsDevice reports whether the caller is an authenticated device.
func (p Principal) IsDevice() bool {
	return p.Kind == PrincipalDevice && p.UID != ""
}

// ClientPrincipal builds a client principal.
func ClientPrincipal(uid string) Principal {
	return Principal{Kind: PrincipalClient, UID: uid}
}

// DevicePrincipal builds a device principal.
func DevicePrincipal(uid string) Principal {
	return Principal{Kind: PrincipalDevice, UID: uid}
}
