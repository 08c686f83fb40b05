package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"medreport/internal/models"
)

// Matched anywhere in the normalized key.
var deniedSubstrings = []string{
	"contact", "phone", "mobile", "email", "e_mail",
	"address", "postal", "postcode", "zipcode", "zip_code", "pincode", "pin_code",
	"insurance", "insurer", "policy_number", "account", "billing",
	"identifier", "mrn", "medical_record_number", "record_number", "registration", "uhid",
	"social_security", "passport", "aadhaar", "patient_number",
	"patient_name", "first_name", "last_name", "full_name", "middle_name", "given_name",
	"family_name", "surname", "guardian", "next_of_kin", "person_name", "doctor_name", "physician_name",
	"date_of_birth", "birth_date", "birthdate",
	"employer", "occupation", "reference", "nationality", "marital",
}

// Matched against whole tokens only, so "capacity" or "thyroid" survive.
var deniedTokens = map[string]struct{}{
	"id": {}, "ids": {}, "uid": {}, "ref": {}, "age": {}, "sex": {}, "gender": {},
	"zip": {}, "pin": {}, "city": {}, "country": {}, "street": {}, "district": {},
	"county": {}, "province": {}, "town": {}, "village": {}, "dob": {}, "ssn": {}, "fax": {},
}

// Denied only when they are the whole key, so "Medication Name" or
// "Mental State" survive.
var deniedSoleTokens = map[string]struct{}{
	"name": {}, "names": {}, "state": {},
}

var (
	callingCodeRe = regexp.MustCompile(`(?:^|[\s(:;,])\+[1-9]\d{0,2}\)?[\s.-]?\(?\d{2,}[\d\s().-]{4,}`)
	keySpaceRe    = regexp.MustCompile(`[\s-]+`)
)

// NormalizeKey lowercases key and replaces whitespace and hyphens with underscores.
func NormalizeKey(key string) string {
	return keySpaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(key)), "_")
}

// IsUnwantedKey reports whether key names personal or administrative data.
func IsUnwantedKey(key string) bool {
	norm := NormalizeKey(key)
	for _, s := range deniedSubstrings {
		if strings.Contains(norm, s) {
			return true
		}
	}
	tokens := strings.FieldsFunc(norm, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if _, ok := deniedTokens[tok]; ok {
			return true
		}
	}
	if len(tokens) == 1 {
		if _, ok := deniedSoleTokens[tokens[0]]; ok {
			return true
		}
	}
	return false
}

// HasContactMarker reports whether the stringified value carries contact info.
func HasContactMarker(v models.Value) bool {
	s := strings.Join(v.Strings(), " ")
	if strings.Contains(s, "@") {
		return true
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "tel:") || strings.Contains(lower, "phone:") {
		return true
	}
	return callingCodeRe.MatchString(s)
}

// Filter returns a copy of rec without unwanted keys, contact-bearing values
// and empty values. Filter(Filter(r)) equals Filter(r).
func Filter(rec *models.Record) *models.Record {
	out, _ := filterWithReport(rec)
	return out
}

func filterWithReport(rec *models.Record) (*models.Record, []string) {
	out := models.NewRecord()
	var dropped []string
	rec.Each(func(key string, v models.Value) bool {
		switch {
		case strings.TrimSpace(key) == "":
			dropped = append(dropped, "(blank key)")
		case IsUnwantedKey(key):
			dropped = append(dropped, key+"(denied)")
		case v.IsEmpty():
			dropped = append(dropped, key+"(empty)")
		case HasContactMarker(v):
			dropped = append(dropped, key+"(contact)")
		default:
			out.Set(key, v)
		}
		return true
	})
	return out, dropped
}
