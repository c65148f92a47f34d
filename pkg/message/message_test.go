package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rucResponse12 = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Header/><env:Body>` +
	`<ns2:rResEnviConsRUC xmlns:ns2="http://ekuatia.set.gov.py/sifen/xsd">` +
	`<ns2:dCodRes>0502</ns2:dCodRes><ns2:dMsgRes>RUC encontrado</ns2:dMsgRes>` +
	`<ns2:xContRUC><ns2:dRUCCons>80089752</ns2:dRUCCons><ns2:dRazCons>EMPRESA DE PRUEBA S.A.</ns2:dRazCons>` +
	`<ns2:dCodEstCons>ACT</ns2:dCodEstCons><ns2:dDesEstCons>ACTIVO</ns2:dDesEstCons><ns2:dRUCFactElec>S</ns2:dRUCFactElec></ns2:xContRUC>` +
	`</ns2:rResEnviConsRUC></env:Body></env:Envelope>`

const rucResponse11 = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">` +
	`<soapenv:Body><rResEnviConsRUC xmlns="http://ekuatia.set.gov.py/sifen/xsd">` +
	`<dCodRes>0500</dCodRes><dMsgRes>RUC no existe</dMsgRes>` +
	`</rResEnviConsRUC></soapenv:Body></soapenv:Envelope>`

func TestBuild(t *testing.T) {
	t.Run("SOAP 1.2", func(t *testing.T) {
		payload, err := Build(SOAP12, NewRUCQuery("000000000000001", "80089752"))
		require.NoError(t, err)

		s := string(payload)
		assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?><soap:Envelope xmlns:soap="`+NsSOAP12+`">`))
		assert.Contains(t, s, `<soap:Body><rEnviConsRUC xmlns="`+NsSIFEN+`"><dId>000000000000001</dId><dRUCCons>80089752</dRUCCons></rEnviConsRUC></soap:Body>`)
		assert.NotContains(t, s, "\n")

		env, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, SOAP12, env.Version)
		assert.NotNil(t, env.Result("rEnviConsRUC"))
	})

	t.Run("SOAP 1.1", func(t *testing.T) {
		payload, err := Build(SOAP11, NewRUCQuery("000000000000002", "80089752"))
		require.NoError(t, err)
		assert.Contains(t, string(payload), `xmlns:soap="`+NsSOAP11+`"`)

		env, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, SOAP11, env.Version)
	})

	t.Run("nil body", func(t *testing.T) {
		_, err := Build(SOAP12, nil)
		assert.Error(t, err)
	})
}

func TestBuild_EmbedsSignedDocumentVerbatim(t *testing.T) {
	signed := `<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><dVerFor>150</dVerFor><DE Id="01"><dDVId>1</dDVId></DE>` +
		`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignatureValue>abc=</SignatureValue></Signature></rDE>`

	payload, err := Build(SOAP12, NewDocumentSubmission("000000000000003", []byte(signed)))
	require.NoError(t, err)
	assert.Contains(t, string(payload), "<xDE>"+signed+"</xDE>")
}

func TestBuild_LotAndQueries(t *testing.T) {
	payload, err := Build(SOAP12, NewLotSubmission("1", "UEsDBBQ="))
	require.NoError(t, err)
	assert.Contains(t, string(payload), `<rEnvioLote xmlns="`+NsSIFEN+`"><dId>1</dId><xDE>UEsDBBQ=</xDE></rEnvioLote>`)

	payload, err = Build(SOAP12, NewLotQuery("2", "123456789"))
	require.NoError(t, err)
	assert.Contains(t, string(payload), `<rEnviConsLoteDe xmlns="`+NsSIFEN+`"><dId>2</dId><dProtConsLote>123456789</dProtConsLote></rEnviConsLoteDe>`)

	payload, err = Build(SOAP12, NewDocumentQuery("3", "0180089752"))
	require.NoError(t, err)
	assert.Contains(t, string(payload), `<rEnviConsDeRequest xmlns="`+NsSIFEN+`"><dId>3</dId><dCDC>0180089752</dCDC></rEnviConsDeRequest>`)
}

func TestDecode_SOAP12Result(t *testing.T) {
	env, err := Decode([]byte(rucResponse12))
	require.NoError(t, err)
	assert.Equal(t, SOAP12, env.Version)

	var res RUCResult
	found, err := env.ResultInto(ResultRUC, &res)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0502", res.Code)
	assert.Equal(t, "RUC encontrado", res.Message)
	require.NotNil(t, res.Taxpayer)
	assert.Equal(t, "80089752", res.Taxpayer.RUC)
	assert.Equal(t, "EMPRESA DE PRUEBA S.A.", res.Taxpayer.Name)
	assert.Equal(t, "S", res.Taxpayer.ElectronicBiller)
	assert.Equal(t, "0502", env.Text("dCodRes"))
}

func TestDecode_SOAP11ResponseToSOAP12Request(t *testing.T) {
	env, err := Decode([]byte(rucResponse11))
	require.NoError(t, err)
	assert.Equal(t, SOAP11, env.Version)

	var res RUCResult
	found, err := env.ResultInto(ResultRUC, &res)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0500", res.Code)
	assert.Nil(t, res.Taxpayer)
}

func TestDecode_SniffedNamespaceFallsBack(t *testing.T) {
	// a 1.1 envelope whose content mentions the 1.2 namespace
	raw := `<e:Envelope xmlns:e="http://schemas.xmlsoap.org/soap/envelope/"><e:Body>` +
		`<rResEnviConsRUC xmlns="http://ekuatia.set.gov.py/sifen/xsd"><dCodRes>0502</dCodRes>` +
		`<dMsgRes>see http://www.w3.org/2003/05/soap-envelope</dMsgRes></rResEnviConsRUC></e:Body></e:Envelope>`

	env, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, SOAP11, env.Version)
	assert.Equal(t, "0502", env.Text("dCodRes"))
}

func TestDecode_Indeterminate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty body", `<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Body/></env:Envelope>`},
		{"unexpected body", `<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Body><other>x</other></env:Body></env:Envelope>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Nil(t, env.Result(ResultRUC))

			var res RUCResult
			found, err := env.ResultInto(ResultRUC, &res)
			require.NoError(t, err)
			assert.False(t, found)
			assert.Empty(t, res.Code)
			assert.Nil(t, env.Fault())
		})
	}
}

func TestDecode_Unparseable(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"html", "<html><body>Bad Gateway</body></html>"},
		{"plain text", "Service Unavailable"},
		{"no body", `<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Header/></env:Envelope>`},
		{"unknown namespace", `<Envelope xmlns="urn:other"><Body/></Envelope>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrUnparseableEnvelope)
		})
	}
}

func TestEnvelope_Fault(t *testing.T) {
	t.Run("SOAP 1.2", func(t *testing.T) {
		raw := `<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Body><env:Fault>` +
			`<env:Code><env:Value>env:Sender</env:Value></env:Code>` +
			`<env:Reason><env:Text xml:lang="es">Mensaje mal formado</env:Text></env:Reason>` +
			`<env:Detail><ns2:dCodRes xmlns:ns2="http://ekuatia.set.gov.py/sifen/xsd">0160</ns2:dCodRes></env:Detail>` +
			`</env:Fault></env:Body></env:Envelope>`
		env, err := Decode([]byte(raw))
		require.NoError(t, err)

		f := env.Fault()
		require.NotNil(t, f)
		assert.Equal(t, "env:Sender", f.Code)
		assert.Equal(t, "Mensaje mal formado", f.Reason)
		assert.Equal(t, "0160", f.Detail)
		assert.Contains(t, f.Error(), "Mensaje mal formado")
	})

	t.Run("SOAP 1.1", func(t *testing.T) {
		raw := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>` +
			`<faultcode>s:Server</faultcode><faultstring>Internal error</faultstring>` +
			`</s:Fault></s:Body></s:Envelope>`
		env, err := Decode([]byte(raw))
		require.NoError(t, err)

		f := env.Fault()
		require.NotNil(t, f)
		assert.Equal(t, "s:Server", f.Code)
		assert.Equal(t, "Internal error", f.Reason)
	})
}

func TestDecode_LotQueryResult(t *testing.T) {
	raw := `<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Body>` +
		`<ns2:rResEnviConsLoteDe xmlns:ns2="http://ekuatia.set.gov.py/sifen/xsd">` +
		`<ns2:dFecProc>2024-01-15T10:00:00-03:00</ns2:dFecProc><ns2:dCodResLot>0362</ns2:dCodResLot>` +
		`<ns2:dMsgResLot>Procesamiento de lote concluido</ns2:dMsgResLot>` +
		`<ns2:gResProcLote><ns2:id>01800897528001001000000122024011510000000011</ns2:id><ns2:dEstRes>Aprobado</ns2:dEstRes>` +
		`<ns2:dProtAut>111</ns2:dProtAut><ns2:gResProc><ns2:dCodRes>0260</ns2:dCodRes><ns2:dMsgRes>Aprobado</ns2:dMsgRes></ns2:gResProc></ns2:gResProcLote>` +
		`<ns2:gResProcLote><ns2:id>01800897528001001000000222024011510000000012</ns2:id><ns2:dEstRes>Rechazado</ns2:dEstRes>` +
		`<ns2:gResProc><ns2:dCodRes>1000</ns2:dCodRes><ns2:dMsgRes>CDC no corresponde</ns2:dMsgRes></ns2:gResProc></ns2:gResProcLote>` +
		`</ns2:rResEnviConsLoteDe></env:Body></env:Envelope>`

	env, err := Decode([]byte(raw))
	require.NoError(t, err)

	var res LotQueryResult
	found, err := env.ResultInto(ResultLotQuery, &res)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0362", res.Code)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "Aprobado", res.Documents[0].Status)
	assert.Equal(t, "0260", res.Documents[0].Messages[0].Code)
	assert.Equal(t, "Rechazado", res.Documents[1].Status)
	assert.Empty(t, res.Documents[1].Protocol)
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "1.2", SOAP12.String())
	assert.Equal(t, "1.1", SOAP11.String())
	assert.Equal(t, NsSOAP12, SOAP12.Namespace())
	assert.Equal(t, NsSOAP11, SOAP11.Namespace())
}
