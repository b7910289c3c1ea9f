package core

// Capability identifies one unit of work a connector can perform.
// The set is closed; jobs validate their capabilities against it.
type Capability string

const (
	CapWebLogin             Capability = "internal.web_login"
	CapInvoiceDownload      Capability = "invoice.download"
	CapPaymentExportInfo    Capability = "payment.export_info"
	CapPaymentImportInfo    Capability = "payment.import_info"
	CapPaymentPay           Capability = "payment.pay"
	CapAccountingImportAll  Capability = "accounting.import_multiple"
	CapBankAccountImport    Capability = "bank_account.import_list"
	CapGLImport             Capability = "gl.import_list"
	CapVendorImport         Capability = "vendor.import_list"
)

// allCapabilities is the closed capability set.
var allCapabilities = map[Capability]bool{
	CapWebLogin:            true,
	CapInvoiceDownload:     true,
	CapPaymentExportInfo:   true,
	CapPaymentImportInfo:   true,
	CapPaymentPay:          true,
	CapAccountingImportAll: true,
	CapBankAccountImport:   true,
	CapGLImport:            true,
	CapVendorImport:        true,
}

// Valid reports whether the capability belongs to the closed set.
func (c Capability) Valid() bool { return allCapabilities[c] }

// Expand resolves composite capabilities into the concrete ones they
// stand for. accounting.import_multiple performs the three accounting
// list imports in a single session.
func (c Capability) Expand() []Capability {
	if c == CapAccountingImportAll {
		return []Capability{CapBankAccountImport, CapGLImport, CapVendorImport}
	}
	return []Capability{c}
}

// ExpandAll flattens a capability list through Expand, preserving order
// and dropping duplicates.
func ExpandAll(caps []Capability) []Capability {
	seen := make(map[Capability]bool, len(caps))
	var out []Capability
	for _, c := range caps {
		for _, e := range c.Expand() {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}
