package domain

// TrustDomain is a read-only snapshot of an externally trusted realm as
// reported by the identity management server. The engine never mutates these.
type TrustDomain struct {
	Name        string `json:"name"`
	NetBIOSName string `json:"netbiosName"`
	Realm       string `json:"realm"`
	Type        string `json:"type"` // e.g. "ad"
}
