package normalize

import (
	"testing"

	"medreport/internal/models"
)

func TestIsUnwantedKey(t *testing.T) {
	denied := []string{
		"contact", "Phone Number", "patient_email", "Home Address", "Patient ID", "id", "MRN",
		"Insurance", "account_no", "Postal Code", "zip", "City", "State", "Country",
		"Patient Name", "name", "DOB", "Date of Birth", "Age", "Sex", "Gender",
		"Employer", "Occupation", "Reference No", "Emergency-Contact", "Names", "Doctor Name",
	}
	for _, k := range denied {
		if !IsUnwantedKey(k) {
			t.Fatalf("expected %q to be denied", k)
		}
	}
	allowed := []string{
		"summary", "conditions", "medications", "vitals", "treatments", "Thyroid Panel",
		"Vital Capacity", "Lipid Profile", "Fluid Balance", "Diagnoses", "Follow-up Plan",
		"Patient Summary", "Mental Status", "Dosage", "Mental State", "Medication Name",
		"Test Names", "Disease State",
	}
	for _, k := range allowed {
		if IsUnwantedKey(k) {
			t.Fatalf("expected %q to be allowed", k)
		}
	}
}

func TestHasContactMarker(t *testing.T) {
	marked := []models.Value{
		models.Text("reach me at a@b.com"),
		models.List("tel:5551234"),
		models.List("x", "Phone: 555"),
		models.Text("+44 20 7946 0958"),
		models.List("call (+1) 415 555 0100"),
	}
	for _, v := range marked {
		if !HasContactMarker(v) {
			t.Fatalf("expected contact marker in %v", v.Strings())
		}
	}
	clean := []models.Value{
		models.Text("BP 120/80"),
		models.List("Pitting edema +2", "HbA1c 7.1%"),
		models.List("Platelets 250 x10^3/uL"),
		models.Text("Troponin +0.05 12345 ng"),
	}
	for _, v := range clean {
		if HasContactMarker(v) {
			t.Fatalf("unexpected contact marker in %v", v.Strings())
		}
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	rec := models.NewRecord()
	rec.Set("summary", models.Text("ok"))
	rec.Set("Patient Name", models.Text("Jane"))
	rec.Set("conditions", models.List("flu"))
	rec.Set("notes", models.List())
	rec.Set("Callback", models.Text("tel:123"))
	rec.Set("  ", models.Text("blank key"))
	rec.Set("vitals", models.List("HR 72"))

	once := Filter(rec)
	twice := Filter(once)
	if !once.Equal(twice) {
		t.Fatalf("filter not idempotent: %s vs %s", once.String(), twice.String())
	}
	want := []string{"summary", "conditions", "vitals"}
	got := once.Keys()
	if len(got) != len(want) {
		t.Fatalf("got keys %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got keys %v want %v", got, want)
		}
	}
	if rec.Len() != 7 {
		t.Fatalf("Filter must not mutate its input")
	}
}

func TestFilterKeepsClinicalFieldsWithAmbiguousWords(t *testing.T) {
	rec := models.NewRecord()
	rec.Set("Mental State", models.Text("alert and oriented"))
	rec.Set("Medication Name", models.List("metformin"))
	rec.Set("Notes", models.List("Troponin +0.05 12345 ng"))
	rec.Set("State", models.Text("CA"))

	got := Filter(rec).Keys()
	want := []string{"Mental State", "Medication Name", "Notes"}
	if len(got) != len(want) {
		t.Fatalf("got keys %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got keys %v want %v", got, want)
		}
	}
}
