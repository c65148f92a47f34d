package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IdentifierLength is the length of a CDC including its check digit
const IdentifierLength = 44

// CheckDigit computes the SIFEN modulo 11 check digit of a numeric string.
// Weights run 2..11 from the rightmost digit and wrap back to 2. The same
// algorithm yields the DV of a RUC.
func CheckDigit(number string) (int, error) {
	if number == "" {
		return 0, fmt.Errorf("%w: empty number", ErrInvalidDocumentFields)
	}

	total := 0
	k := 2
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: non-digit %q in %q", ErrInvalidDocumentFields, c, number)
		}
		if k > 11 {
			k = 2
		}
		total += int(c-'0') * k
		k++
	}

	rest := total % 11
	if rest > 1 {
		return 11 - rest, nil
	}
	return 0, nil
}

// DeriveIdentifier computes the 44-digit CDC for the given fields.
// The result only depends on the identifier fields, so identical input
// always yields the same CDC.
func DeriveIdentifier(f Fields) (string, error) {
	if err := f.validateIdentifierFields(); err != nil {
		return "", err
	}

	base := identifierBase(f)
	dv, err := CheckDigit(base)
	if err != nil {
		return "", err
	}
	return base + strconv.Itoa(dv), nil
}

// ValidateIdentifier reports whether cdc is 44 digits long and its last
// digit matches the recomputed check digit.
func ValidateIdentifier(cdc string) bool {
	if len(cdc) != IdentifierLength {
		return false
	}
	dv, err := CheckDigit(cdc[:IdentifierLength-1])
	if err != nil {
		return false
	}
	return int(cdc[IdentifierLength-1]-'0') == dv
}

// identifierBase renders the 43 digits that precede the check digit
func identifierBase(f Fields) string {
	var b strings.Builder
	b.Grow(IdentifierLength)
	fmt.Fprintf(&b, "%02d", int(f.Type))
	b.WriteString(strings.Repeat("0", 8-len(f.IssuerRUC)))
	b.WriteString(f.IssuerRUC)
	fmt.Fprintf(&b, "%d", f.IssuerDV)
	fmt.Fprintf(&b, "%03d", f.Establishment)
	fmt.Fprintf(&b, "%03d", f.PointOfSale)
	fmt.Fprintf(&b, "%07d", f.Number)
	fmt.Fprintf(&b, "%d", int(f.TaxpayerType))
	b.WriteString(f.IssuedAt.Format("20060102"))
	fmt.Fprintf(&b, "%d", int(f.EmissionType))
	fmt.Fprintf(&b, "%09d", f.SecurityCode)
	return b.String()
}

func (f Fields) validateIdentifierFields() error {
	switch f.Type {
	case TypeInvoice, TypeSelfInvoice, TypeCreditNote, TypeDebitNote, TypeRemissionNote:
	default:
		return fmt.Errorf("%w: document type %d", ErrInvalidDocumentFields, f.Type)
	}

	if f.IssuerRUC == "" || len(f.IssuerRUC) > 8 {
		return fmt.Errorf("%w: issuer RUC %q must have 1 to 8 digits", ErrInvalidDocumentFields, f.IssuerRUC)
	}
	dv, err := CheckDigit(f.IssuerRUC)
	if err != nil {
		return err
	}
	if dv != f.IssuerDV {
		return fmt.Errorf("%w: issuer DV %d does not match RUC %s (expected %d)", ErrInvalidDocumentFields, f.IssuerDV, f.IssuerRUC, dv)
	}

	if f.Establishment < 1 || f.Establishment > 999 {
		return fmt.Errorf("%w: establishment %d out of range 1..999", ErrInvalidDocumentFields, f.Establishment)
	}
	if f.PointOfSale < 1 || f.PointOfSale > 999 {
		return fmt.Errorf("%w: point of sale %d out of range 1..999", ErrInvalidDocumentFields, f.PointOfSale)
	}
	if f.Number < 1 || f.Number > 9999999 {
		return fmt.Errorf("%w: document number %d out of range 1..9999999", ErrInvalidDocumentFields, f.Number)
	}

	switch f.TaxpayerType {
	case TaxpayerIndividual, TaxpayerCompany:
	default:
		return fmt.Errorf("%w: taxpayer type %d", ErrInvalidDocumentFields, f.TaxpayerType)
	}

	if f.IssuedAt.IsZero() {
		return fmt.Errorf("%w: issue date is required", ErrInvalidDocumentFields)
	}
	if y := f.IssuedAt.Year(); y < minIssueYear || y > maxIssueYear {
		return fmt.Errorf("%w: issue year %d out of range %d..%d", ErrInvalidDocumentFields, y, minIssueYear, maxIssueYear)
	}

	switch f.EmissionType {
	case EmissionNormal, EmissionContingency:
	default:
		return fmt.Errorf("%w: emission type %d", ErrInvalidDocumentFields, f.EmissionType)
	}

	if f.SecurityCode < 1 || f.SecurityCode > 999999999 {
		return fmt.Errorf("%w: security code %d out of range 1..999999999", ErrInvalidDocumentFields, f.SecurityCode)
	}

	return nil
}

const (
	minIssueYear = 2000
	maxIssueYear = 2099
)

// parseIssueDate reads dFeEmiDE, which SIFEN writes as a local date-time
func parseIssueDate(s string) (time.Time, error) {
	for _, layout := range []string{dateTimeLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid issue date %q", ErrInvalidDocumentFields, s)
}
