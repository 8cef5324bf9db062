package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEncryption(t *testing.T) {
	tests := []struct {
		privacy string
		want    Encryption
	}{
		{"WPA2", EncWPA2},
		{"WPA3 WPA2", EncWPA2 | EncWPA3},
		{" wpa ", EncWPA},
		{"OPN", EncOpen},
		{"WEP", EncWEP},
		{"", 0},
		{"SAE", 0},
	}
	for _, tt := range tests {
		t.Run(tt.privacy, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEncryption(tt.privacy))
		})
	}
}

func TestEncryptionString(t *testing.T) {
	assert.Equal(t, "WPA3 WPA2", (EncWPA2 | EncWPA3).String())
	assert.True(t, (EncWPA2 | EncWPA3).IsWPA())
	assert.False(t, EncWEP.IsWPA())
	assert.False(t, EncWPA2.Has(0))
}

func TestTargetClone(t *testing.T) {
	orig := Target{
		BSSID:   "AA:BB:CC:DD:EE:FF",
		Clients: []Client{{Station: "11:22:33:44:55:66", ProbedESSIDs: []string{"home"}}},
	}
	clone := orig.Clone()
	clone.Clients[0].Station = "changed"
	clone.Clients[0].ProbedESSIDs[0] = "changed"

	assert.Equal(t, "11:22:33:44:55:66", orig.Clients[0].Station)
	assert.Equal(t, "home", orig.Clients[0].ProbedESSIDs[0])
	assert.True(t, orig.HasClient("11:22:33:44:55:66"))
}

func TestClientAssociated(t *testing.T) {
	assert.True(t, Client{BSSID: "AA:BB:CC:DD:EE:FF"}.Associated())
	assert.False(t, Client{BSSID: UnassociatedBSSID}.Associated())
	assert.False(t, Client{}.Associated())
}

func TestCrackResultWithKey(t *testing.T) {
	r := CrackResult{Type: ResultWPA}
	cracked := r.WithKey("hunter22")

	assert.False(t, r.Cracked())
	assert.True(t, cracked.Cracked())
	assert.Equal(t, "hunter22", *cracked.Key)
}
