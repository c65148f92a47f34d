package message

import "fmt"

// Namespace constants
const (
	NsSOAP11 = "http://schemas.xmlsoap.org/soap/envelope/"
	NsSOAP12 = "http://www.w3.org/2003/05/soap-envelope"
	NsSIFEN  = "http://ekuatia.set.gov.py/sifen/xsd"
)

// Version is a SOAP dialect
type Version int

const (
	SOAP12 Version = iota
	SOAP11
)

// Namespace returns the envelope namespace of the dialect
func (v Version) Namespace() string {
	if v == SOAP11 {
		return NsSOAP11
	}
	return NsSOAP12
}

func (v Version) String() string {
	switch v {
	case SOAP11:
		return "1.1"
	case SOAP12:
		return "1.2"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}
