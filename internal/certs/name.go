package certs

import (
	"encoding/asn1"
	"errors"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ErrMalformedName is returned when a distinguished name cannot be decoded.
var ErrMalformedName = errors.New("malformed distinguished name")

const tagBMPString = casn1.Tag(30)

// attributeNames maps well-known attribute OIDs to their short names.
var attributeNames = map[string]string{
	"2.5.4.3":              "commonName",
	"2.5.4.5":              "serialNumber",
	"2.5.4.6":              "countryName",
	"2.5.4.7":              "localityName",
	"2.5.4.8":              "stateOrProvinceName",
	"2.5.4.9":              "streetAddress",
	"2.5.4.10":             "organizationName",
	"2.5.4.11":             "organizationalUnitName",
	"1.2.840.113549.1.9.1": "emailAddress",
}

// Attribute is one type/value pair of a relative distinguished name.
type Attribute struct {
	// Type is the attribute short name, or the dotted OID when unknown.
	Type  string
	Value string
}

// ParseName decodes a DER distinguished name (a SEQUENCE of SETs of
// SEQUENCE{type, value}) into its attributes, in encoding order.
func ParseName(der []byte) ([]Attribute, error) {
	input := cryptobyte.String(der)
	var rdnSeq cryptobyte.String
	if !input.ReadASN1(&rdnSeq, casn1.SEQUENCE) || !input.Empty() {
		return nil, ErrMalformedName
	}

	var attrs []Attribute
	for !rdnSeq.Empty() {
		var rdn cryptobyte.String
		if !rdnSeq.ReadASN1(&rdn, casn1.SET) {
			return nil, ErrMalformedName
		}
		for !rdn.Empty() {
			var atv cryptobyte.String
			if !rdn.ReadASN1(&atv, casn1.SEQUENCE) {
				return nil, ErrMalformedName
			}
			var oid asn1.ObjectIdentifier
			if !atv.ReadASN1ObjectIdentifier(&oid) {
				return nil, ErrMalformedName
			}
			var value cryptobyte.String
			var tag casn1.Tag
			if !atv.ReadAnyASN1(&value, &tag) {
				return nil, ErrMalformedName
			}
			attrs = append(attrs, Attribute{Type: attributeName(oid), Value: decodeString(tag, value)})
		}
	}
	return attrs, nil
}

// CommonName returns the first commonName attribute of a DER distinguished
// name, matching the attribute name case-insensitively. It returns nil when
// the name has no commonName or cannot be decoded.
func CommonName(der []byte) *string {
	attrs, err := ParseName(der)
	if err != nil {
		return nil
	}
	for _, a := range attrs {
		if strings.EqualFold(a.Type, "commonName") {
			v := a.Value
			return &v
		}
	}
	return nil
}

func attributeName(oid asn1.ObjectIdentifier) string {
	key := oid.String()
	if name, ok := attributeNames[key]; ok {
		return name
	}
	return key
}

func decodeString(tag casn1.Tag, value []byte) string {
	if tag == tagBMPString && len(value)%2 == 0 {
		units := make([]uint16, 0, len(value)/2)
		for i := 0; i < len(value); i += 2 {
			units = append(units, uint16(value[i])<<8|uint16(value[i+1]))
		}
		return string(utf16.Decode(units))
	}
	return string(value)
}
