package mdoc

import "testing"

func TestToNameSpaceIncludesMandatoryFields(t *testing.T) {
	m := &MDoc{
		FamilyName:           "Doe",
		GivenName:            "Jane",
		BirthDate:            "1990-01-01",
		IssueDate:            "2024-01-01",
		ExpiryDate:           "2034-01-01",
		IssuingCountry:       "US",
		IssuingAuthority:     "DMV",
		DocumentNumber:       "D1234567",
		Portrait:             []byte{0xFF, 0xD8},
		UNDistinguishingSign: "USA",
	}

	ns := m.ToNameSpace()

	for _, key := range []string{
		"family_name", "given_name", "birth_date", "issue_date", "expiry_date",
		"issuing_country", "issuing_authority", "document_number", "portrait",
		"driving_privileges", "un_distinguishing_sign",
	} {
		if _, ok := ns[key]; !ok {
			t.Errorf("ToNameSpace() missing mandatory field %q", key)
		}
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	m := &MDoc{}
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want a validation failure for an empty MDoc")
	}
}

func TestValidateAcceptsWellFormedMDoc(t *testing.T) {
	m := &MDoc{
		FamilyName:           "Doe",
		GivenName:            "Jane",
		BirthDate:            "1990-01-01",
		IssueDate:            "2024-01-01",
		ExpiryDate:           "2034-01-01",
		IssuingCountry:       "US",
		IssuingAuthority:     "DMV",
		DocumentNumber:       "D1234567",
		Portrait:             []byte{0xFF, 0xD8},
		DrivingPrivileges:    []DrivingPrivilege{{VehicleCategoryCode: "B"}},
		UNDistinguishingSign: "USA",
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestToNameSpaceOmitsUnsetOptionalFields(t *testing.T) {
	m := &MDoc{}
	ns := m.ToNameSpace()

	for _, key := range []string{"sex", "height", "eye_colour", "nationality"} {
		if _, ok := ns[key]; ok {
			t.Errorf("ToNameSpace() unexpectedly included unset optional field %q", key)
		}
	}
}

func TestToNameSpaceIncludesSetOptionalFields(t *testing.T) {
	sex := uint(2)
	m := &MDoc{Sex: &sex}
	ns := m.ToNameSpace()

	v, ok := ns["sex"]
	if !ok {
		t.Fatal("ToNameSpace() missing set optional field \"sex\"")
	}
	if p, ok := v.(*uint); !ok || *p != 2 {
		t.Errorf("ns[\"sex\"] = %v, want pointer to 2", v)
	}
}

func TestToNameSpaceEncodesAgeOverThresholds(t *testing.T) {
	m := &MDoc{AgeOver: AgeOver{18: true, 21: false, 65: true}}
	ns := m.ToNameSpace()

	tests := map[string]bool{
		"age_over_18": true,
		"age_over_21": false,
		"age_over_65": true,
	}
	for id, want := range tests {
		v, ok := ns[id]
		if !ok {
			t.Fatalf("ToNameSpace() missing age_over identifier %q", id)
		}
		if v != want {
			t.Errorf("ns[%q] = %v, want %v", id, v, want)
		}
	}
}

func TestAgeOverIdentifier(t *testing.T) {
	if got := ageOverIdentifier(21); got != "age_over_21" {
		t.Errorf("ageOverIdentifier(21) = %q, want %q", got, "age_over_21")
	}
}
