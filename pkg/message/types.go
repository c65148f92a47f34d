package message

import "encoding/xml"

// Request bodies. Each carries the SIFEN namespace as its default namespace
// so the envelope does not need to declare it.

// RUCQuery is the taxpayer lookup request (siConsRUC)
type RUCQuery struct {
	XMLName xml.Name `xml:"rEnviConsRUC"`
	Xmlns   string   `xml:"xmlns,attr"`
	ID      string   `xml:"dId"`
	RUC     string   `xml:"dRUCCons"`
}

// DocumentSubmission is the synchronous single document reception request
// (siRecepDE). The signed rDE is embedded verbatim.
type DocumentSubmission struct {
	XMLName xml.Name `xml:"rEnviDe"`
	Xmlns   string   `xml:"xmlns,attr"`
	ID      string   `xml:"dId"`
	XDE     RawXML   `xml:"xDE"`
}

// LotSubmission is the asynchronous lot reception request (siRecepLoteDE).
// XDE holds the base64 zip of the lot text.
type LotSubmission struct {
	XMLName xml.Name `xml:"rEnvioLote"`
	Xmlns   string   `xml:"xmlns,attr"`
	ID      string   `xml:"dId"`
	XDE     string   `xml:"xDE"`
}

// LotQuery asks for the processing result of a lot (siConsLoteDE)
type LotQuery struct {
	XMLName  xml.Name `xml:"rEnviConsLoteDe"`
	Xmlns    string   `xml:"xmlns,attr"`
	ID       string   `xml:"dId"`
	Protocol string   `xml:"dProtConsLote"`
}

// DocumentQuery asks for a document by CDC (siConsDE)
type DocumentQuery struct {
	XMLName xml.Name `xml:"rEnviConsDeRequest"`
	Xmlns   string   `xml:"xmlns,attr"`
	ID      string   `xml:"dId"`
	CDC     string   `xml:"dCDC"`
}

// RawXML is markup written into the body without escaping or re-encoding
type RawXML struct {
	Inner []byte `xml:",innerxml"`
}

// Result node names
const (
	ResultRUC          = "rResEnviConsRUC"
	ResultDocument     = "rRetEnviDe"
	ResultLot          = "rResEnviLoteDe"
	ResultLotQuery     = "rResEnviConsLoteDe"
	ResultDocumentInfo = "rEnviConsDeResponse"
)

// RUCResult is rResEnviConsRUC
type RUCResult struct {
	Code     string       `xml:"dCodRes"`
	Message  string       `xml:"dMsgRes"`
	Taxpayer *TaxpayerRUC `xml:"xContRUC"`
}

// TaxpayerRUC is xContRUC
type TaxpayerRUC struct {
	RUC              string `xml:"dRUCCons"`
	Name             string `xml:"dRazCons"`
	StatusCode       string `xml:"dCodEstCons"`
	Status           string `xml:"dDesEstCons"`
	ElectronicBiller string `xml:"dRUCFactElec"`
}

// ProcessingMessage is gResProc
type ProcessingMessage struct {
	Code    string `xml:"dCodRes"`
	Message string `xml:"dMsgRes"`
}

// DocumentProtocol is rProtDe
type DocumentProtocol struct {
	CDC         string              `xml:"id"`
	ProcessedAt string              `xml:"dFecProc"`
	DigestValue string              `xml:"dDigVal"`
	Status      string              `xml:"dEstRes"`
	Protocol    string              `xml:"dProtAut"`
	Messages    []ProcessingMessage `xml:"gResProc"`
}

// DocumentResult is rRetEnviDe
type DocumentResult struct {
	Protocol DocumentProtocol `xml:"rProtDe"`
}

// LotResult is rResEnviLoteDe
type LotResult struct {
	ProcessedAt    string `xml:"dFecProc"`
	Code           string `xml:"dCodRes"`
	Message        string `xml:"dMsgRes"`
	Protocol       string `xml:"dProtConsLote"`
	ProcessingTime string `xml:"dTpoProces"`
}

// LotDocumentResult is one gResProcLote entry
type LotDocumentResult struct {
	CDC      string              `xml:"id"`
	Status   string              `xml:"dEstRes"`
	Protocol string              `xml:"dProtAut"`
	Messages []ProcessingMessage `xml:"gResProc"`
}

// LotQueryResult is rResEnviConsLoteDe
type LotQueryResult struct {
	ProcessedAt string              `xml:"dFecProc"`
	Code        string              `xml:"dCodResLot"`
	Message     string              `xml:"dMsgResLot"`
	Documents   []LotDocumentResult `xml:"gResProcLote"`
}

// DocumentInfoResult is rEnviConsDeResponse
type DocumentInfoResult struct {
	ProcessedAt string `xml:"dFecProc"`
	Code        string `xml:"dCodRes"`
	Message     string `xml:"dMsgRes"`
	Content     RawXML `xml:"xContenDE"`
}
