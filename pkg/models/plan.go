package models

// AttackKind identifies an attack technique
type AttackKind string

// Attack kinds
const (
	AttackWPSDefaultPIN AttackKind = "wps-default-pin"
	AttackWPSPixieDust  AttackKind = "wps-pixie-dust"
	AttackWPSPIN        AttackKind = "wps-pin"
	AttackPMKID         AttackKind = "pmkid"
	AttackWPA3PMKID     AttackKind = "wpa3-pmkid"
	AttackWPAHandshake  AttackKind = "wpa-handshake"
)

// IsWPS reports whether the technique talks WPS to the access point
func (k AttackKind) IsWPS() bool {
	switch k {
	case AttackWPSDefaultPIN, AttackWPSPixieDust, AttackWPSPIN:
		return true
	}
	return false
}

// AttackStep is one technique in an AttackPlan
type AttackStep struct {
	Kind         AttackKind   `json:"kind"`
	ParallelWith []AttackKind `json:"parallel_with,omitempty"`
}

// CompatibleWith reports whether the step may run alongside other
func (s AttackStep) CompatibleWith(other AttackKind) bool {
	for _, k := range s.ParallelWith {
		if k == other {
			return true
		}
	}
	return false
}

// AttackPlan is the ordered list of techniques to try against one target
type AttackPlan struct {
	Target Target       `json:"target"`
	Steps  []AttackStep `json:"steps"`
}

// Kinds returns the technique kinds in plan order
func (p AttackPlan) Kinds() []AttackKind {
	kinds := make([]AttackKind, len(p.Steps))
	for i, s := range p.Steps {
		kinds[i] = s.Kind
	}
	return kinds
}

// Empty reports whether no technique applies
func (p AttackPlan) Empty() bool {
	return len(p.Steps) == 0
}
