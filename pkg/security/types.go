package security

// Algorithm URIs used in SIFEN signatures
const (
	AlgorithmRSASHA256          = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmSHA256             = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgorithmC14N               = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgorithmEnvelopedSignature = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)
