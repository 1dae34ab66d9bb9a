// Package mdoc implements the ISO/IEC 18013-5 mdoc/mDL data model (C4): the
// MDL attribute set, the MSO payload, and the issuer/device-signed document
// wire shapes built on pkg/cbordet and pkg/cose.
package mdoc

import (
	"strconv"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// DocType is the document type identifier for mDL.
const DocType = "org.iso.18013.5.1.mDL"

// Namespace is the namespace for mDL data elements.
const Namespace = "org.iso.18013.5.1"

// AgeOverPrefix is the element-identifier prefix of the age_over_NN family.
const AgeOverPrefix = "age_over_"

// MDoc is the full set of mDL data-element values for a single holder,
// carried unsigned until handed to an MSOBuilder. Field tags double as the
// element identifiers used by the namespace map and by selective disclosure.
type MDoc struct {
	FamilyName           string             `json:"family_name" cbor:"family_name" validate:"required,max=150"`
	GivenName            string             `json:"given_name" cbor:"given_name" validate:"required,max=150"`
	BirthDate            string             `json:"birth_date" cbor:"birth_date" validate:"required"`
	IssueDate            string             `json:"issue_date" cbor:"issue_date" validate:"required"`
	ExpiryDate           string             `json:"expiry_date" cbor:"expiry_date" validate:"required"`
	IssuingCountry       string             `json:"issuing_country" cbor:"issuing_country" validate:"required,len=2"`
	IssuingAuthority     string             `json:"issuing_authority" cbor:"issuing_authority" validate:"required,max=150"`
	DocumentNumber       string             `json:"document_number" cbor:"document_number" validate:"required,max=150"`
	Portrait             []byte             `json:"portrait" cbor:"portrait" validate:"required"`
	DrivingPrivileges    []DrivingPrivilege `json:"driving_privileges" cbor:"driving_privileges" validate:"required,dive"`
	UNDistinguishingSign string             `json:"un_distinguishing_sign" cbor:"un_distinguishing_sign" validate:"required"`

	AdministrativeNumber *string  `json:"administrative_number,omitempty" cbor:"administrative_number,omitempty" validate:"omitempty,max=150"`
	Sex                  *uint    `json:"sex,omitempty" cbor:"sex,omitempty" validate:"omitempty,oneof=0 1 2 9"`
	Height               *uint    `json:"height,omitempty" cbor:"height,omitempty" validate:"omitempty,min=1,max=300"`
	Weight               *uint    `json:"weight,omitempty" cbor:"weight,omitempty" validate:"omitempty,min=1,max=500"`
	EyeColour            *string  `json:"eye_colour,omitempty" cbor:"eye_colour,omitempty"`
	HairColour           *string  `json:"hair_colour,omitempty" cbor:"hair_colour,omitempty"`
	BirthPlace           *string  `json:"birth_place,omitempty" cbor:"birth_place,omitempty" validate:"omitempty,max=150"`
	ResidentAddress      *string  `json:"resident_address,omitempty" cbor:"resident_address,omitempty" validate:"omitempty,max=150"`
	AgeInYears           *uint    `json:"age_in_years,omitempty" cbor:"age_in_years,omitempty" validate:"omitempty,min=0,max=150"`
	AgeBirthYear         *uint    `json:"age_birth_year,omitempty" cbor:"age_birth_year,omitempty"`
	AgeOver              AgeOver  `json:"-" cbor:"-"`
	IssuingJurisdiction  *string  `json:"issuing_jurisdiction,omitempty" cbor:"issuing_jurisdiction,omitempty"`
	Nationality          *string  `json:"nationality,omitempty" cbor:"nationality,omitempty" validate:"omitempty,len=2"`
	ResidentCity         *string  `json:"resident_city,omitempty" cbor:"resident_city,omitempty" validate:"omitempty,max=150"`
	ResidentState        *string  `json:"resident_state,omitempty" cbor:"resident_state,omitempty" validate:"omitempty,max=150"`
	ResidentPostalCode   *string  `json:"resident_postal_code,omitempty" cbor:"resident_postal_code,omitempty" validate:"omitempty,max=150"`
	ResidentCountry      *string  `json:"resident_country,omitempty" cbor:"resident_country,omitempty" validate:"omitempty,len=2"`
}

// DrivingPrivilege represents a single driving privilege category.
type DrivingPrivilege struct {
	VehicleCategoryCode string                 `json:"vehicle_category_code" cbor:"vehicle_category_code" validate:"required"`
	IssueDate            *string               `json:"issue_date,omitempty" cbor:"issue_date,omitempty"`
	ExpiryDate           *string               `json:"expiry_date,omitempty" cbor:"expiry_date,omitempty"`
	Codes                []DrivingPrivilegeCode `json:"codes,omitempty" cbor:"codes,omitempty" validate:"omitempty,dive"`
}

// DrivingPrivilegeCode is a restriction/condition code attached to a privilege.
type DrivingPrivilegeCode struct {
	Code  string  `json:"code" cbor:"code" validate:"required"`
	Sign  *string `json:"sign,omitempty" cbor:"sign,omitempty"`
	Value *string `json:"value,omitempty" cbor:"value,omitempty"`
}

// AgeOver holds the age_over_NN attestation family as a sparse map keyed by
// threshold, so selective disclosure (§4.6) can walk arbitrary NN values
// rather than a fixed set of four.
type AgeOver map[uint]bool

// Validate checks the struct tags above (required fields, country-code
// length, driving-privilege shape) before the MDoc is handed to an
// MSOBuilder, so malformed holder data is rejected before it is ever signed.
func (m *MDoc) Validate() error {
	return structValidator.Struct(m)
}

// ToNameSpace expands an MDoc into the flat element-identifier → value map
// that an IssuerSigned namespace holds, i.e. the input to an MSOBuilder.
func (m *MDoc) ToNameSpace() map[string]any {
	elements := map[string]any{
		"family_name":             m.FamilyName,
		"given_name":              m.GivenName,
		"birth_date":              m.BirthDate,
		"issue_date":              m.IssueDate,
		"expiry_date":             m.ExpiryDate,
		"issuing_country":         m.IssuingCountry,
		"issuing_authority":       m.IssuingAuthority,
		"document_number":         m.DocumentNumber,
		"portrait":                m.Portrait,
		"driving_privileges":      m.DrivingPrivileges,
		"un_distinguishing_sign":  m.UNDistinguishingSign,
	}
	optional := map[string]any{
		"administrative_number": m.AdministrativeNumber,
		"sex":                   m.Sex,
		"height":                m.Height,
		"weight":                m.Weight,
		"eye_colour":            m.EyeColour,
		"hair_colour":           m.HairColour,
		"birth_place":           m.BirthPlace,
		"resident_address":      m.ResidentAddress,
		"age_in_years":          m.AgeInYears,
		"age_birth_year":        m.AgeBirthYear,
		"issuing_jurisdiction":  m.IssuingJurisdiction,
		"nationality":           m.Nationality,
		"resident_city":         m.ResidentCity,
		"resident_state":        m.ResidentState,
		"resident_postal_code":  m.ResidentPostalCode,
		"resident_country":      m.ResidentCountry,
	}
	for k, v := range optional {
		if isNilPointer(v) {
			continue
		}
		elements[k] = v
	}
	for threshold, value := range m.AgeOver {
		elements[ageOverIdentifier(threshold)] = value
	}
	return elements
}

func ageOverIdentifier(threshold uint) string {
	return AgeOverPrefix + strconv.FormatUint(uint64(threshold), 10)
}

func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *string:
		return p == nil
	case *uint:
		return p == nil
	default:
		return false
	}
}
