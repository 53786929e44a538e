package types

import "strings"

// DocumentType is the closed taxonomy for segments of a production.
// Other is the only open-ended value; anything a classifier cannot place
// must clamp to it.
type DocumentType string

const (
	DocTypeMotion                  DocumentType = "Motion"
	DocTypeDeposition              DocumentType = "Deposition"
	DocTypeExhibit                 DocumentType = "Exhibit"
	DocTypeContract                DocumentType = "Contract"
	DocTypeEmail                   DocumentType = "Email"
	DocTypeMedicalRecord           DocumentType = "MedicalRecord"
	DocTypePoliceReport            DocumentType = "PoliceReport"
	DocTypeIncidentReport          DocumentType = "IncidentReport"
	DocTypeExpertReport            DocumentType = "ExpertReport"
	DocTypeAffidavit               DocumentType = "Affidavit"
	DocTypeWitnessStatement        DocumentType = "WitnessStatement"
	DocTypeInvoice                 DocumentType = "Invoice"
	DocTypeFinancialRecord         DocumentType = "FinancialRecord"
	DocTypeEmploymentRecord        DocumentType = "EmploymentRecord"
	DocTypeInsurancePolicy         DocumentType = "InsurancePolicy"
	DocTypeInterrogatoryResponse   DocumentType = "InterrogatoryResponse"
	DocTypeAdmissionResponse       DocumentType = "AdmissionResponse"
	DocTypeDriverQualificationFile DocumentType = "DriverQualificationFile"
	DocTypeMaintenanceRecord       DocumentType = "MaintenanceRecord"
	DocTypeInspectionReport        DocumentType = "InspectionReport"
	DocTypeHoursOfServiceLog       DocumentType = "HoursOfServiceLog"
	DocTypeBillOfLading            DocumentType = "BillOfLading"
	DocTypeCorrespondence          DocumentType = "Correspondence"
	DocTypeOther                   DocumentType = "Other"

	// DocTypeUnknown marks segments the boundary detector could not type.
	// It is a pre-classification placeholder, not part of the closed enum.
	DocTypeUnknown DocumentType = "Unknown"
)

// AllDocumentTypes lists every member of the closed enum, in stable order.
var AllDocumentTypes = []DocumentType{
	DocTypeMotion, DocTypeDeposition, DocTypeExhibit, DocTypeContract,
	DocTypeEmail, DocTypeMedicalRecord, DocTypePoliceReport,
	DocTypeIncidentReport, DocTypeExpertReport, DocTypeAffidavit,
	DocTypeWitnessStatement, DocTypeInvoice, DocTypeFinancialRecord,
	DocTypeEmploymentRecord, DocTypeInsurancePolicy,
	DocTypeInterrogatoryResponse, DocTypeAdmissionResponse,
	DocTypeDriverQualificationFile, DocTypeMaintenanceRecord,
	DocTypeInspectionReport, DocTypeHoursOfServiceLog, DocTypeBillOfLading,
	DocTypeCorrespondence, DocTypeOther,
}

// ParseDocumentType maps a label to a member of the closed enum.
// Unrecognized labels clamp to Other; the boolean reports an exact match.
func ParseDocumentType(label string) (DocumentType, bool) {
	trimmed := strings.TrimSpace(label)
	for _, dt := range AllDocumentTypes {
		if strings.EqualFold(trimmed, string(dt)) {
			return dt, true
		}
	}
	return DocTypeOther, false
}

// factExtractionAllowed is the set of types that carry extractable evidence.
// Motions, pleadings, and discovery requests argue rather than attest, so
// facts extracted from them would launder advocacy into the record.
var factExtractionAllowed = map[DocumentType]bool{
	DocTypeDeposition:              true,
	DocTypeExhibit:                 true,
	DocTypeContract:                true,
	DocTypeEmail:                   true,
	DocTypeMedicalRecord:           true,
	DocTypePoliceReport:            true,
	DocTypeIncidentReport:          true,
	DocTypeAffidavit:               true,
	DocTypeWitnessStatement:        true,
	DocTypeInvoice:                 true,
	DocTypeFinancialRecord:         true,
	DocTypeEmploymentRecord:        true,
	DocTypeInsurancePolicy:         true,
	DocTypeInterrogatoryResponse:   true,
	DocTypeAdmissionResponse:       true,
	DocTypeDriverQualificationFile: true,
	DocTypeMaintenanceRecord:       true,
	DocTypeInspectionReport:        true,
	DocTypeHoursOfServiceLog:       true,
	DocTypeBillOfLading:            true,
	DocTypeCorrespondence:          true,
}

// AllowsFactExtraction reports whether the fact extractor may run on a
// segment of this type without a force override.
func (dt DocumentType) AllowsFactExtraction() bool {
	return factExtractionAllowed[dt]
}
