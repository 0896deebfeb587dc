package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskLicenseKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "****"},
		{"SHORT", "****"},
		{"12345678", "****"},
		{"LK-TEST-ABCD-1234", "LK-T****1234"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskLicenseKey(tt.key))
		})
	}
}

func TestHashLicenseKey(t *testing.T) {
	assert.Empty(t, hashLicenseKey(""))

	h := hashLicenseKey("LK-TEST-ABCD-1234")
	assert.Len(t, h, 16)
	assert.Equal(t, h, hashLicenseKey("LK-TEST-ABCD-1234"))
	assert.NotEqual(t, h, hashLicenseKey("LK-TEST-ABCD-1235"))
}
