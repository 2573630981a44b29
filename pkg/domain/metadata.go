package domain

import (
	dErrors "aurum/pkg/domain-errors"
)

// Metadata is a schema-checked attribute bag attached to tokens and custody
// records. Known keys are typed fields; anything else goes into a bounded
// free-form extension map instead of an open blob.
type Metadata struct {
	Description   string            `json:"description,omitempty"`
	CustodianName string            `json:"custodianName,omitempty"`
	VaultLocation string            `json:"vaultLocation,omitempty"`
	CertificateID string            `json:"certificateId,omitempty"`
	Extensions    map[string]string `json:"extensions,omitempty"`
}

const (
	maxMetadataValueLen = 512
	maxExtensionKeys    = 16
)

// Validate enforces the bounds of the extension map and field lengths.
func (m Metadata) Validate() error {
	for _, v := range []string{m.Description, m.CustodianName, m.VaultLocation, m.CertificateID} {
		if len(v) > maxMetadataValueLen {
			return dErrors.Newf(dErrors.CodeInvalidInput, "metadata field exceeds %d characters", maxMetadataValueLen)
		}
	}
	if len(m.Extensions) > maxExtensionKeys {
		return dErrors.Newf(dErrors.CodeInvalidInput, "metadata extensions limited to %d keys", maxExtensionKeys)
	}
	for k, v := range m.Extensions {
		if k == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "metadata extension key must not be empty")
		}
		if len(k) > 64 || len(v) > maxMetadataValueLen {
			return dErrors.New(dErrors.CodeInvalidInput, "metadata extension entry too large")
		}
	}
	return nil
}

// IsZero reports whether no field is set. Token creation requires non-zero
// metadata describing the backing asset.
func (m Metadata) IsZero() bool {
	return m.Description == "" && m.CustodianName == "" && m.VaultLocation == "" &&
		m.CertificateID == "" && len(m.Extensions) == 0
}
