package domain

import (
	"fmt"
	"strings"
)

// LCTerms are the buyer's letter-of-credit terms as declared.
// The engine reads them and never modifies them.
type LCTerms struct {
	Reference string `json:"lcReference"`

	BeneficiaryName string `json:"beneficiaryName"`
	ApplicantName   string `json:"applicantName"`

	GoodsDescription string  `json:"goodsDescription"`
	HSCode           string  `json:"hsCode"`
	Quantity         float64 `json:"quantity"`
	QuantityUnit     string  `json:"quantityUnit"`
	UnitPrice        float64 `json:"unitPrice"`
	Currency         string  `json:"currency"`
	TotalAmount      float64 `json:"totalAmount"`

	CountryOfOrigin string `json:"countryOfOrigin"`
	PortOfLoading   string `json:"portOfLoading"`
	PortOfDischarge string `json:"portOfDischarge"`

	LatestShipmentDate string `json:"latestShipmentDate"`
	ExpiryDate         string `json:"expiryDate"`
	Incoterms          string `json:"incoterms"`

	// nil means the LC says nothing about the condition.
	PartialShipmentsAllowed *bool `json:"partialShipmentsAllowed,omitempty"`
	TranshipmentAllowed     *bool `json:"transhipmentAllowed,omitempty"`
}

// DocumentType tags a presented document.
type DocumentType string

const (
	DocCommercialInvoice DocumentType = "commercial_invoice"
	DocBillOfLading      DocumentType = "bill_of_lading"
	DocCertOfOrigin      DocumentType = "certificate_of_origin"
	DocPhytosanitary     DocumentType = "phytosanitary_certificate"
	DocPackingList       DocumentType = "packing_list"
	DocOther             DocumentType = "other"
)

// DocumentTypes lists every supported document type.
var DocumentTypes = []DocumentType{
	DocCommercialInvoice,
	DocBillOfLading,
	DocCertOfOrigin,
	DocPhytosanitary,
	DocPackingList,
	DocOther,
}

// Valid reports whether t is a supported document type.
func (t DocumentType) Valid() bool {
	for _, known := range DocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Document field keys read by the cross-check engine. Keys outside this
// vocabulary are ignored.
const (
	FieldBeneficiaryName  = "beneficiaryName"
	FieldShipperName      = "shipperName"
	FieldExporterName     = "exporterName"
	FieldCurrency         = "currency"
	FieldTotalAmount      = "totalAmount"
	FieldQuantity         = "quantity"
	FieldGoodsDescription = "goodsDescription"
	FieldHSCode           = "hsCode"
	FieldIncoterms        = "incoterms"
	FieldPartialShipment  = "partialShipment"
	FieldTranshipment     = "transhipment"
	FieldPortOfLoading    = "portOfLoading"
	FieldPortOfDischarge  = "portOfDischarge"
	FieldOnBoardDate      = "onBoardDate"
	FieldShipmentDate     = "shipmentDate"
	FieldBLNumber         = "blNumber"
	FieldCountryOfOrigin  = "countryOfOrigin"
	FieldCHEDReference    = "chedReference"
)

// TradeDocument is one presented document: a type tag plus free-form fields.
type TradeDocument struct {
	ID     string            `json:"id,omitempty"`
	Type   DocumentType      `json:"type"`
	Fields map[string]string `json:"fields"`
}

// Field returns the trimmed value for key, or "" when absent.
func (d TradeDocument) Field(key string) string {
	return strings.TrimSpace(d.Fields[key])
}

// CrossCheckRequest is the API payload for a cross-check.
type CrossCheckRequest struct {
	TradeID   string          `json:"tradeId"`
	LC        LCTerms         `json:"lc"`
	Documents []TradeDocument `json:"documents"`
}

// Validate rejects requests the engine must never see.
func (r *CrossCheckRequest) Validate() error {
	if strings.TrimSpace(r.TradeID) == "" {
		return fmt.Errorf("tradeId is required")
	}
	if len(r.Documents) == 0 {
		return fmt.Errorf("at least one document is required")
	}
	for i, doc := range r.Documents {
		if !doc.Type.Valid() {
			return fmt.Errorf("documents[%d]: unknown document type %q", i, doc.Type)
		}
	}
	return nil
}
