package models

import (
	"time"
)

// ResultType identifies the kind of artifact a successful attack produced
type ResultType string

// Result types
const (
	ResultWPA   ResultType = "WPA"
	ResultPMKID ResultType = "PMKID"
	ResultWPS   ResultType = "WPS"
)

// CrackResult is produced by a successful attack technique. It is never
// modified once handed to the caller.
type CrackResult struct {
	Type  ResultType `json:"type"`
	BSSID string     `json:"bssid"`
	ESSID string     `json:"essid"`
	File  string     `json:"file,omitempty"` // Handshake capture or PMKID hash file
	Key   *string    `json:"key"`            // Nil until cracked
	PIN   string     `json:"pin,omitempty"`  // WPS only
	Date  time.Time  `json:"date"`
}

// Cracked reports whether the key has been recovered
func (r CrackResult) Cracked() bool {
	return r.Key != nil
}

// WithKey returns a copy of r carrying the recovered key
func (r CrackResult) WithKey(key string) CrackResult {
	r.Key = &key
	return r
}
